// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"

	"github.com/bureau-foundation/outpost/protocol"
)

// systemInfo collects host information for the system-info request.
// Username and shell are best-effort: absent rather than erroring on
// minimal systems with no passwd database.
func systemInfo() (protocol.ResponseArgs, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	family := "unix"
	if runtime.GOOS == "windows" {
		family = "windows"
	}

	info := &protocol.SystemInfo{
		Family:        family,
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		CurrentDir:    currentDir,
		MainSeparator: string(filepath.Separator),
		Shell:         os.Getenv("SHELL"),
	}
	if account, err := user.Current(); err == nil {
		info.Username = account.Username
	}
	return info, nil
}

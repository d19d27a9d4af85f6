// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package server

import (
	"io/fs"
	"runtime"

	"github.com/bureau-foundation/outpost/protocol"
)

// applyStatDetail fills what platform-independent stat offers. Access
// and change times are unavailable without the platform Stat_t; unix
// permission detail still applies on non-Linux unix hosts.
func applyStatDetail(info fs.FileInfo, result *protocol.Metadata) {
	if runtime.GOOS == "windows" {
		return
	}
	permissions := protocol.UnixPermissionsFromMode(uint32(info.Mode().Perm()))
	result.Unix = &permissions
}

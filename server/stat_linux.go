// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package server

import (
	"io/fs"
	"syscall"

	"github.com/bureau-foundation/outpost/protocol"
)

// applyStatDetail fills the unix-specific metadata fields: access and
// inode-change times in milliseconds, and decomposed permission bits.
func applyStatDetail(info fs.FileInfo, result *protocol.Metadata) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	result.Accessed = uint64(stat.Atim.Sec)*1000 + uint64(stat.Atim.Nsec)/1_000_000
	result.Created = uint64(stat.Ctim.Sec)*1000 + uint64(stat.Ctim.Nsec)/1_000_000
	permissions := protocol.UnixPermissionsFromMode(uint32(info.Mode().Perm()))
	result.Unix = &permissions
}

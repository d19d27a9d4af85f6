// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// FileType classifies a directory entry or metadata subject.
type FileType string

const (
	FileTypeFile    FileType = "file"
	FileTypeDir     FileType = "dir"
	FileTypeSymlink FileType = "symlink"
)

// DirEntry is one entry in a DirEntries listing.
type DirEntry struct {
	// Path is relative to the requested root unless the request asked
	// for absolute paths.
	Path string `cbor:"path"`

	// FileType classifies the entry.
	FileType FileType `cbor:"file_type"`

	// Depth is the entry's distance from the requested root; direct
	// children are depth 1, the root itself depth 0.
	Depth int `cbor:"depth"`
}

// UnixPermissions is the per-class permission detail of a path on a
// unix host, decomposed from the mode bits.
type UnixPermissions struct {
	OwnerRead  bool `cbor:"owner_read"`
	OwnerWrite bool `cbor:"owner_write"`
	OwnerExec  bool `cbor:"owner_exec"`
	GroupRead  bool `cbor:"group_read"`
	GroupWrite bool `cbor:"group_write"`
	GroupExec  bool `cbor:"group_exec"`
	OtherRead  bool `cbor:"other_read"`
	OtherWrite bool `cbor:"other_write"`
	OtherExec  bool `cbor:"other_exec"`
}

// UnixPermissionsFromMode decomposes the low nine mode bits.
func UnixPermissionsFromMode(mode uint32) UnixPermissions {
	return UnixPermissions{
		OwnerRead:  mode&0o400 != 0,
		OwnerWrite: mode&0o200 != 0,
		OwnerExec:  mode&0o100 != 0,
		GroupRead:  mode&0o040 != 0,
		GroupWrite: mode&0o020 != 0,
		GroupExec:  mode&0o010 != 0,
		OtherRead:  mode&0o004 != 0,
		OtherWrite: mode&0o002 != 0,
		OtherExec:  mode&0o001 != 0,
	}
}

// Mode recomposes the permission bits.
func (p UnixPermissions) Mode() uint32 {
	var mode uint32
	if p.OwnerRead {
		mode |= 0o400
	}
	if p.OwnerWrite {
		mode |= 0o200
	}
	if p.OwnerExec {
		mode |= 0o100
	}
	if p.GroupRead {
		mode |= 0o040
	}
	if p.GroupWrite {
		mode |= 0o020
	}
	if p.GroupExec {
		mode |= 0o010
	}
	if p.OtherRead {
		mode |= 0o004
	}
	if p.OtherWrite {
		mode |= 0o002
	}
	if p.OtherExec {
		mode |= 0o001
	}
	return mode
}

// Metadata answers MetadataRequest.
type Metadata struct {
	// CanonicalizedPath is the symlink-resolved path, included only
	// when the request asked for it.
	CanonicalizedPath string `cbor:"canonicalized_path,omitempty"`

	// FileType classifies the path (or its target, when the request
	// asked to resolve symlinks).
	FileType FileType `cbor:"file_type"`

	// Len is the size in bytes.
	Len uint64 `cbor:"len"`

	// Readonly reports whether the path is unwritable by its owner.
	Readonly bool `cbor:"readonly"`

	// Accessed, Created, and Modified are milliseconds since the
	// epoch, zero when the filesystem does not track them.
	Accessed uint64 `cbor:"accessed,omitempty"`
	Created  uint64 `cbor:"created,omitempty"`
	Modified uint64 `cbor:"modified,omitempty"`

	// Unix carries unix-specific permission detail, absent on other
	// host families.
	Unix *UnixPermissions `cbor:"unix,omitempty"`
}

func (*Metadata) Op() ResponseOp { return OpMetadataResult }

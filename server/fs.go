// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bureau-foundation/outpost/frame"
	"github.com/bureau-foundation/outpost/protocol"
)

// maxReadSize caps file-read responses so the encoded envelope fits a
// frame: the 8 MiB body limit minus headroom for CBOR structure and
// codec overhead.
const maxReadSize = frame.MaxBodyLength - 64*1024

func fileRead(path string) (protocol.ResponseArgs, error) {
	data, err := readBounded(path)
	if err != nil {
		return nil, err
	}
	return &protocol.Blob{Data: data}, nil
}

func fileReadText(path string) (protocol.ResponseArgs, error) {
	data, err := readBounded(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, protocol.NewError(protocol.KindInvalidInput,
			"%s does not contain valid UTF-8", path)
	}
	return &protocol.Text{Text: string(data)}, nil
}

func readBounded(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxReadSize {
		return nil, protocol.NewError(protocol.KindInvalidInput,
			"%s is %d bytes, larger than the %d byte single-response limit",
			path, info.Size(), maxReadSize)
	}
	return os.ReadFile(path)
}

func fileWrite(path string, data []byte) (protocol.ResponseArgs, error) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return &protocol.Ok{}, nil
}

func fileAppend(path string, data []byte) (protocol.ResponseArgs, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	_, writeErr := file.Write(data)
	closeErr := file.Close()
	if writeErr != nil {
		return nil, writeErr
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return &protocol.Ok{}, nil
}

func dirCreate(args *protocol.DirCreate) (protocol.ResponseArgs, error) {
	var err error
	if args.All {
		err = os.MkdirAll(args.Path, 0o755)
	} else {
		err = os.Mkdir(args.Path, 0o755)
	}
	if err != nil {
		return nil, err
	}
	return &protocol.Ok{}, nil
}

func remove(args *protocol.Remove) (protocol.ResponseArgs, error) {
	var err error
	if args.Force {
		err = os.RemoveAll(args.Path)
	} else {
		err = os.Remove(args.Path)
	}
	if err != nil {
		return nil, err
	}
	return &protocol.Ok{}, nil
}

func rename(args *protocol.Rename) (protocol.ResponseArgs, error) {
	if err := os.Rename(args.Src, args.Dst); err != nil {
		return nil, err
	}
	return &protocol.Ok{}, nil
}

func exists(path string) (protocol.ResponseArgs, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return &protocol.ExistsResult{Value: true}, nil
	case os.IsNotExist(err):
		return &protocol.ExistsResult{Value: false}, nil
	default:
		return nil, err
	}
}

// copyPath duplicates a file, symlink, or directory tree.
func copyPath(args *protocol.Copy) (protocol.ResponseArgs, error) {
	info, err := os.Lstat(args.Src)
	if err != nil {
		return nil, err
	}
	if err := copyEntry(args.Src, args.Dst, info); err != nil {
		return nil, err
	}
	return &protocol.Ok{}, nil
}

func copyEntry(source, destination string, info fs.FileInfo) error {
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(source)
		if err != nil {
			return err
		}
		return os.Symlink(target, destination)

	case info.IsDir():
		if err := os.MkdirAll(destination, info.Mode().Perm()); err != nil {
			return err
		}
		entries, err := os.ReadDir(source)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			entryInfo, err := entry.Info()
			if err != nil {
				return err
			}
			if err := copyEntry(
				filepath.Join(source, entry.Name()),
				filepath.Join(destination, entry.Name()),
				entryInfo,
			); err != nil {
				return err
			}
		}
		return nil

	default:
		return copyFile(source, destination, info.Mode().Perm())
	}
}

func copyFile(source, destination string, perm fs.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// dirRead lists entries under a directory up to the requested depth.
// Unreadable subtrees become per-entry errors rather than failing the
// whole listing.
func dirRead(args *protocol.DirRead) (protocol.ResponseArgs, error) {
	depth := args.Depth
	if depth < 0 {
		return nil, protocol.NewError(protocol.KindInvalidInput, "depth must not be negative")
	}
	if depth == 0 {
		depth = 1
	}

	root := args.Path
	rootInfo, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !rootInfo.IsDir() {
		return nil, protocol.NewError(protocol.KindInvalidInput, "%s is not a directory", root)
	}

	result := &protocol.DirEntries{Entries: []protocol.DirEntry{}, Errors: []protocol.Error{}}
	if args.IncludeRoot {
		entry, err := makeDirEntry(root, root, 0, args)
		if err != nil {
			result.Errors = append(result.Errors, *protocol.ErrorFrom(err))
		} else {
			result.Entries = append(result.Entries, entry)
		}
	}
	rootCount := len(result.Entries)

	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if path == root {
			return nil
		}
		if err != nil {
			result.Errors = append(result.Errors, *protocol.ErrorFrom(err))
			return fs.SkipDir
		}

		entryDepth := pathDepth(root, path)
		if entryDepth > depth {
			if entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		converted, convertErr := makeDirEntry(root, path, entryDepth, args)
		if convertErr != nil {
			result.Errors = append(result.Errors, *protocol.ErrorFrom(convertErr))
			return nil
		}
		result.Entries = append(result.Entries, converted)

		if entry.IsDir() && entryDepth >= depth {
			return fs.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	children := result.Entries[rootCount:]
	sort.Slice(children, func(i, j int) bool {
		return children[i].Path < children[j].Path
	})
	return result, nil
}

func pathDepth(root, path string) int {
	relative, err := filepath.Rel(root, path)
	if err != nil || relative == "." {
		return 0
	}
	return strings.Count(relative, string(filepath.Separator)) + 1
}

func makeDirEntry(root, path string, depth int, args *protocol.DirRead) (protocol.DirEntry, error) {
	reported := path
	if args.Canonicalize {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return protocol.DirEntry{}, err
		}
		reported = resolved
	}
	if !args.Absolute {
		relative, err := filepath.Rel(root, reported)
		if err != nil {
			return protocol.DirEntry{}, err
		}
		reported = relative
	} else if !filepath.IsAbs(reported) {
		absolute, err := filepath.Abs(reported)
		if err != nil {
			return protocol.DirEntry{}, err
		}
		reported = absolute
	}

	info, err := os.Lstat(path)
	if err != nil {
		return protocol.DirEntry{}, err
	}
	return protocol.DirEntry{
		Path:     reported,
		FileType: fileTypeOf(info.Mode()),
		Depth:    depth,
	}, nil
}

func fileTypeOf(mode fs.FileMode) protocol.FileType {
	switch {
	case mode&fs.ModeSymlink != 0:
		return protocol.FileTypeSymlink
	case mode.IsDir():
		return protocol.FileTypeDir
	default:
		return protocol.FileTypeFile
	}
}

// metadata reports stat information about a path.
func metadata(args *protocol.MetadataRequest) (protocol.ResponseArgs, error) {
	info, err := os.Lstat(args.Path)
	if err != nil {
		return nil, err
	}

	result := &protocol.Metadata{
		FileType: fileTypeOf(info.Mode()),
		Len:      uint64(info.Size()),
		Readonly: info.Mode().Perm()&0o200 == 0,
		Modified: uint64(info.ModTime().UnixMilli()),
	}

	if args.ResolveFileType && info.Mode()&fs.ModeSymlink != 0 {
		resolved, err := os.Stat(args.Path)
		if err == nil {
			result.FileType = fileTypeOf(resolved.Mode())
		}
	}
	if args.Canonicalize {
		canonical, err := filepath.EvalSymlinks(args.Path)
		if err != nil {
			return nil, err
		}
		result.CanonicalizedPath = canonical
	}

	applyStatDetail(info, result)
	return result, nil
}


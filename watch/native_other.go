// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package watch

import "fmt"

// nativeAvailable reports whether this platform has a native backend.
const nativeAvailable = false

// newNativeBackend is unavailable off Linux; the manager falls back to
// polling without calling it.
func newNativeBackend(root string, recursive bool) (backend, error) {
	return nil, fmt.Errorf("no native watch backend on this platform")
}

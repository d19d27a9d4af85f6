// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability.
//
// Production code injects Real(); tests inject Fake() with deterministic
// time control. The watch manager's debouncer is the main consumer:
// coalescing windows and tick rates are exercised in tests by advancing
// a fake clock rather than sleeping.
package clock

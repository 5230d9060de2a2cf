// Copyright 2025 The affinity Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package goid

import (
	"runtime"
	"strconv"
)

// Thread identifies the goroutine a hook is running on.
type Thread struct {
	// ID is the runtime goroutine ID (always positive, never reused).
	ID int64

	// Name is the bound name, or "goroutine-<id>" when none is bound.
	Name string
}

// String returns the thread name.
func (t Thread) String() string {
	return t.Name
}

// ID returns the current goroutine ID.
//
// Stack trace format: "goroutine 123 [running]:\n..."
//
// Returns 0 if the header cannot be parsed.
func ID() int64 {
	// Only the first line is needed.
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// Current returns the identity of the calling goroutine.
func Current() Thread {
	id := ID()
	return Thread{ID: id, Name: nameOf(id)}
}

// parseGID extracts the goroutine ID from stack trace bytes.
//
// Expected format: "goroutine 123 [running]:..."
// Returns the numeric ID (123 in this example) or 0 if parsing fails.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	const prefixLen = len(prefix)

	if len(buf) < prefixLen {
		return 0
	}
	if string(buf[:prefixLen]) != prefix {
		return 0
	}

	var gid int64
	for i := prefixLen; i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			// Usually the space before "[running]".
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}

func syntheticName(id int64) string {
	return "goroutine-" + strconv.FormatInt(id, 10)
}

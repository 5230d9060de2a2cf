// Copyright 2025 The affinity Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package goid

import (
	"strings"
	"sync"
)

// names maps goroutine IDs to host-assigned names.
//
// Key: int64 (goroutine ID)
// Value: string
//
// Goroutine IDs are never reused by the runtime, so an entry left behind by
// a goroutine that exited without calling ClearName can never be picked up
// by another goroutine. It only costs memory.
var names sync.Map

// SetName binds name to the calling goroutine, replacing any previous name.
// An empty name is equivalent to ClearName.
func SetName(name string) {
	if name == "" {
		ClearName()
		return
	}
	names.Store(ID(), name)
}

// ClearName removes the calling goroutine's name.
func ClearName() {
	names.Delete(ID())
}

// Go starts f on a new goroutine named name. The name is removed when f
// returns or panics.
func Go(name string, f func()) {
	go func() {
		SetName(name)
		defer ClearName()
		f()
	}()
}

// Named returns the number of goroutines that currently have a name bound.
func Named() int {
	n := 0
	names.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func nameOf(id int64) string {
	if v, ok := names.Load(id); ok {
		return v.(string)
	}
	return syntheticName(id)
}

// Policy decides whether a goroutine holds the affinity role.
type Policy func(Thread) bool

// PrefixPolicy grants the affinity role to goroutines whose name starts
// with prefix. An empty prefix matches no goroutine.
func PrefixPolicy(prefix string) Policy {
	return func(t Thread) bool {
		return prefix != "" && strings.HasPrefix(t.Name, prefix)
	}
}

// Copyright 2025 The affinity Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package goid provides goroutine identity for the affinity monitor.
//
// Go deliberately hides goroutine identity, so the monitor derives it the
// same way the Go runtime prints it: from the header line of the current
// goroutine's stack trace ("goroutine 123 [running]:").
//
// Goroutines have no names either. The package keeps a process-wide table
// binding goroutine IDs to names, which hosts populate with [SetName] or by
// starting goroutines through [Go]. The affinity role is assigned by name
// prefix rather than by a stored ID, so an event loop that is restarted on
// a fresh goroutine keeps the role as long as it names itself with the
// same prefix.
//
// Unnamed goroutines report a synthetic name "goroutine-<id>".
package goid

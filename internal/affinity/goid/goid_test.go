// Copyright 2025 The affinity Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package goid

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// TestID_Basic tests basic goroutine ID extraction.
func TestID_Basic(t *testing.T) {
	gid := ID()
	if gid <= 0 {
		t.Errorf("ID() returned non-positive ID: %d", gid)
	}

	// Same goroutine, same ID.
	if gid2 := ID(); gid != gid2 {
		t.Errorf("ID() not stable: first=%d, second=%d", gid, gid2)
	}
}

// TestID_MultipleGoroutines tests that every goroutine gets its own ID.
func TestID_MultipleGoroutines(t *testing.T) {
	const numGoroutines = 100

	gidChan := make(chan int64, numGoroutines)
	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gidChan <- ID()
		}()
	}
	wg.Wait()
	close(gidChan)

	seen := make(map[int64]bool)
	for gid := range gidChan {
		if gid <= 0 {
			t.Errorf("Goroutine got non-positive ID: %d", gid)
		}
		if seen[gid] {
			t.Errorf("Duplicate GID detected: %d", gid)
		}
		seen[gid] = true
	}
	if len(seen) != numGoroutines {
		t.Fatalf("Expected %d GIDs, got %d", numGoroutines, len(seen))
	}
}

func TestParseGID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"running", "goroutine 123 [running]:\nmain.main()", 123},
		{"single digit", "goroutine 1 [running]:", 1},
		{"large", "goroutine 9876543210 [select]:", 9876543210},
		{"wrong prefix", "thread 12 [running]:", 0},
		{"too short", "gorout", 0},
		{"empty", "", 0},
		{"no digits", "goroutine [running]:", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseGID([]byte(tt.in)))
		})
	}
}

func TestCurrent_SyntheticName(t *testing.T) {
	done := make(chan Thread)
	go func() {
		done <- Current()
	}()
	th := <-done
	assert.Equal(t, syntheticName(th.ID), th.Name)
	assert.Equal(t, th.Name, th.String())
}

func TestSetName(t *testing.T) {
	done := make(chan [3]Thread)
	go func() {
		var out [3]Thread
		SetName("event-loop-0")
		out[0] = Current()
		SetName("event-loop-1")
		out[1] = Current()
		SetName("")
		out[2] = Current()
		done <- out
	}()
	got := <-done

	assert.Equal(t, "event-loop-0", got[0].Name)
	assert.Equal(t, "event-loop-1", got[1].Name)
	assert.Equal(t, syntheticName(got[2].ID), got[2].Name)
}

func TestGo_ClearsNameOnExit(t *testing.T) {
	before := Named()
	var inside Thread
	var wg sync.WaitGroup
	wg.Add(1)
	Go("worker-1", func() {
		defer wg.Done()
		inside = Current()
	})
	wg.Wait()

	require.Equal(t, "worker-1", inside.Name)
	// The deferred ClearName runs after wg.Done, so wait for it.
	require.Eventually(t, func() bool { return Named() == before }, timeout, tick)
}

func TestPrefixPolicy(t *testing.T) {
	p := PrefixPolicy("event-loop")
	assert.True(t, p(Thread{ID: 1, Name: "event-loop"}))
	assert.True(t, p(Thread{ID: 2, Name: "event-loop-7"}))
	assert.False(t, p(Thread{ID: 3, Name: "worker-1"}))
	assert.False(t, p(Thread{ID: 4, Name: "goroutine-4"}))

	none := PrefixPolicy("")
	assert.False(t, none(Thread{ID: 5, Name: "event-loop"}))
}

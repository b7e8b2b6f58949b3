// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package traverse

import (
	"fmt"
	"os"
	"sync/atomic"
)

// A Reporter receives events from an ongoing traversal. Reporters
// can be set on a T, and are used to monitor progress of
// long-running traversals.
type Reporter interface {
	// Init is called when processing is about to begin. Parameter
	// n indicates the number of tasks to be executed by the traversal.
	Init(n int)
	// Complete is called after the traversal has completed.
	Complete()

	// Begin is called when task i is begun.
	Begin(i int)
	// End is called when task i has completed.
	End(i int)
}

// NewSimpleReporter returns a new reporter that prints the number
// of queued, running, and completed tasks to stderr.
func NewSimpleReporter(name string) Reporter {
	return &simpleReporter{name: name}
}

// Begin/End run on every child goroutine, so the counters are atomics
// rather than a mutex-guarded struct.
type simpleReporter struct {
	name                  string
	queued, running, done int64
}

func (r *simpleReporter) Init(n int) {
	atomic.StoreInt64(&r.queued, int64(n))
	atomic.StoreInt64(&r.running, 0)
	atomic.StoreInt64(&r.done, 0)
	r.update()
}

func (r *simpleReporter) Complete() {
	fmt.Fprintf(os.Stderr, "\n")
}

func (r *simpleReporter) Begin(i int) {
	atomic.AddInt64(&r.queued, -1)
	atomic.AddInt64(&r.running, 1)
	r.update()
}

func (r *simpleReporter) End(i int) {
	atomic.AddInt64(&r.running, -1)
	atomic.AddInt64(&r.done, 1)
	r.update()
}

func (r *simpleReporter) update() {
	queued := atomic.LoadInt64(&r.queued)
	running := atomic.LoadInt64(&r.running)
	done := atomic.LoadInt64(&r.done)
	fmt.Fprintf(os.Stderr, "%s: (queued: %d -> running: %d -> done: %d) \r", r.name, queued, running, done)
}

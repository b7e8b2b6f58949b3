// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package traverse

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"
)

// NewTimeEstimateReporter returns a reporter that reports the number
// of jobs queued, running, and done, as well as the running time of
// the traversal and an estimate for the amount of time remaining.
// Note: for estimation, it assumes jobs have roughly equal running
// time and are FIFO-ish (that is, it does not try to account for the
// bias of shorter jobs finishing first and therefore skewing the
// average estimated job run time).
func NewTimeEstimateReporter(name string) Reporter {
	return &timeEstimateReporter{name: name}
}

type timeEstimateReporter struct {
	name string

	mu sync.Mutex

	numWorkers int
	numQueued  int
	numRunning int
	numDone    int

	startTime         time.Time
	cumulativeRuntime time.Duration
	startTimes        map[int]time.Time

	done chan struct{}
}

func (r *timeEstimateReporter) Init(n int) {
	r.mu.Lock()
	r.numQueued = n
	r.numWorkers = 1
	r.startTime = time.Now()
	r.startTimes = make(map[int]time.Time, n)
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.mu.Lock()
				r.printStatus()
				r.mu.Unlock()
			case <-r.done:
				fmt.Fprintf(os.Stderr, "\n")
				return
			}
		}
	}()
}

func (r *timeEstimateReporter) Complete() {
	close(r.done)
}

func (r *timeEstimateReporter) Begin(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTimes[i] = time.Now()
	r.numQueued--
	r.numRunning++
	if r.numRunning > r.numWorkers {
		r.numWorkers = r.numRunning
	}
	r.printStatus()
}

func (r *timeEstimateReporter) End(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start, ok := r.startTimes[i]
	if !ok {
		panic("end called without start")
	}
	delete(r.startTimes, i)
	r.numRunning--
	r.numDone++
	r.cumulativeRuntime += time.Since(start)
	r.printStatus()
}

// printStatus assumes r.mu is held.
func (r *timeEstimateReporter) printStatus() {
	fmt.Fprintf(os.Stderr, "%s: (queued: %d -> running: %d -> done: %d) %v %s \r",
		r.name, r.numQueued, r.numRunning, r.numDone,
		time.Since(r.startTime).Round(time.Second), r.buildTimeLeftStr(time.Now()))
}

func (r *timeEstimateReporter) buildTimeLeftStr(now time.Time) string {
	// If some jobs have finished, use their average running time for the
	// estimate.  Otherwise, use the duration for which the currently running
	// jobs have been going.
	var modifier string
	var avgRunTime time.Duration
	switch {
	case r.numDone > 0:
		modifier = "~"
		avgRunTime = r.cumulativeRuntime / time.Duration(r.numDone)
	case r.numRunning > 0:
		modifier = ">"
		avgRunTime = r.sumRunningTimes(now) / time.Duration(r.numRunning)
	}

	runningTimeLeft := time.Duration(r.numRunning)*avgRunTime - r.sumRunningTimes(now)
	if r.numRunning > 0 {
		runningTimeLeft /= time.Duration(r.numRunning)
	}
	if runningTimeLeft < 0 {
		runningTimeLeft = 0
	}
	queuedTimeLeft := time.Duration(math.Ceil(float64(r.numQueued)/float64(r.numWorkers))) * avgRunTime

	return fmt.Sprintf("(%s%v left  %v avg)", modifier,
		(queuedTimeLeft + runningTimeLeft).Round(time.Second),
		avgRunTime.Round(time.Second))
}

func (r *timeEstimateReporter) sumRunningTimes(now time.Time) time.Duration {
	var total time.Duration
	for _, start := range r.startTimes {
		total += now.Sub(start)
	}
	return total
}

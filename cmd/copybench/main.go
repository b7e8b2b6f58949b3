// Copyright 2023 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/fastcopy"
	"github.com/grailbio/fastcopy/traverse"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("copybench: ")
	var (
		verify   = flag.Bool("verify", true, "check fastcopy against the built-in copy over a full length sweep")
		bench    = flag.Bool("bench", false, "time fastcopy.Copy against the built-in copy")
		sizes    = flag.String("sizes", "1,2,3,4,7,8,15,16,31,32,63,64,128,4096", "comma-separated copy sizes to time with -bench")
		iters    = flag.Int("iters", 50, "verification passes per length")
		maxLen   = flag.Int("maxlen", 4096, "largest length checked during verification")
		p        = flag.Int("p", 0, "concurrent verification shards; 0 uses a GOMAXPROCS-based default")
		progress = flag.Bool("progress", false, "report verification progress on stderr")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: copybench [-verify] [-bench] [flags]

Copybench exercises the fastcopy package. With -verify (the default),
it copies randomized buffers of every length up to -maxlen and checks
the results against the built-in copy. With -bench, it times
fastcopy.Copy against the built-in copy for each of the -sizes and
prints a table.
`)
		os.Exit(2)
	}
	flag.Parse()

	if *verify {
		if *maxLen < 1 {
			log.Fatalf("invalid -maxlen %d", *maxLen)
		}
		if err := runVerify(*maxLen, *iters, *p, *progress); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("verified lengths [0, %d] x %d iterations (vector width %d)\n",
			*maxLen, *iters, fastcopy.BytesPerVec())
	}
	if *bench {
		sz, err := parseSizes(*sizes)
		if err != nil {
			log.Fatal(err)
		}
		runBench(sz)
	}
}

// runVerify copies randomized buffers of every length in [0, maxLen]
// through each entry point and compares the results against the
// built-in copy. Lengths are swept in parallel shards; each shard
// seeds its own generator so runs are reproducible.
func runVerify(maxLen, iters, p int, progress bool) error {
	tr := traverse.Parallel
	if p > 0 {
		tr = traverse.Limit(p)
	}
	if progress {
		tr.Reporter = traverse.NewTimeEstimateReporter("verify")
	}
	return tr.Range(maxLen+1, func(start, end int) error {
		r := rand.New(rand.NewSource(int64(start)))
		src := make([]byte, maxLen)
		dst := make([]byte, maxLen)
		srcU := fastcopy.MakeUnsafe(maxLen)
		dstU := fastcopy.MakeUnsafe(maxLen)
		for n := start; n < end; n++ {
			for it := 0; it < iters; it++ {
				r.Read(src[:n])
				r.Read(dst[:n])
				fastcopy.Copy(dst[:n], src[:n])
				if !bytes.Equal(dst[:n], src[:n]) {
					return fmt.Errorf("length %d: Copy() mismatch", n)
				}
				r.Read(dst[:n])
				fastcopy.CopyS(dst[:n], string(src[:n]))
				if !bytes.Equal(dst[:n], src[:n]) {
					return fmt.Errorf("length %d: CopyS() mismatch", n)
				}
				r.Read(srcU[:n])
				r.Read(dstU[:cap(dstU)])
				fastcopy.CopyUnsafe(dstU[:n], srcU[:n])
				if !bytes.Equal(dstU[:n], srcU[:n]) {
					return fmt.Errorf("length %d: CopyUnsafe() mismatch", n)
				}
			}
		}
		return nil
	})
}

func parseSizes(s string) ([]int, error) {
	var sizes []int
	for _, field := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("invalid -sizes entry %q", field)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid -sizes entry %d", n)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

func runBench(sizes []int) {
	fmt.Printf("%8s %15s %15s\n", "size", "fastcopy", "builtin")
	for _, n := range sizes {
		src := make([]byte, n)
		dst := make([]byte, n)
		for i := range src {
			src[i] = byte(i * 3)
		}
		fast := timeOp(func() { fastcopy.Copy(dst, src) })
		if !bytes.Equal(dst, src) {
			log.Fatalf("size %d: benchmark copy mismatch", n)
		}
		std := timeOp(func() { copy(dst, src) })
		fmt.Printf("%8d %12.2f ns %12.2f ns\n", n, fast, std)
	}
}

// timeOp reports the per-call latency of f in nanoseconds, growing the
// iteration count until the measurement window is long enough to trust.
func timeOp(f func()) float64 {
	const minWindow = 20 * time.Millisecond
	for iters := 1; ; iters *= 2 {
		start := time.Now()
		for i := 0; i < iters; i++ {
			f()
		}
		elapsed := time.Since(start)
		if elapsed >= minWindow || iters > 1<<30 {
			return float64(elapsed.Nanoseconds()) / float64(iters)
		}
	}
}

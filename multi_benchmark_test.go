// Copyright 2023 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package fastcopy_test

import (
	"runtime"
	"testing"

	"github.com/grailbio/fastcopy"
	"github.com/grailbio/fastcopy/traverse"
)

// Utility function to assist with benchmarking of embarrassingly parallel
// jobs.

type multiBenchFunc func(dst, src []byte, nIter int) int

type taggedMultiBenchFunc struct {
	f   multiBenchFunc
	tag string
}

func multiBenchmark(bf multiBenchFunc, benchmarkSubtype string, nDstByte, nSrcByte, nJob int, b *testing.B) {
	// 'bf' is expected to execute the benchmarking target nIter times.
	//
	// Given that, for each of the 3 nCpu settings below, multiBenchmark
	// launches 'nCpu' goroutines, where each goroutine has nIter set to
	// roughly (nJob / nCpu), so that the total number of benchmark-target
	// function invocations across all threads is nJob.  It is designed to
	// measure how effective traverse.Each-style parallelization is at
	// reducing wall-clock runtime.
	totalCpu := runtime.NumCPU()
	cases := []struct {
		nCpu    int
		descrip string
	}{
		{
			nCpu:    1,
			descrip: "1Cpu",
		},
		// 'Half' is often the saturation point, due to hyperthreading.
		{
			nCpu:    (totalCpu + 1) / 2,
			descrip: "HalfCpu",
		},
		{
			nCpu:    totalCpu,
			descrip: "AllCpu",
		},
	}
	for _, c := range cases {
		success := b.Run(benchmarkSubtype+c.descrip, func(b *testing.B) {
			dsts := make([][]byte, c.nCpu)
			srcs := make([][]byte, c.nCpu)
			for i := 0; i < c.nCpu; i++ {
				// Add 63 to prevent false sharing.
				newArrDst := fastcopy.MakeUnsafe(nDstByte + 63)
				newArrSrc := fastcopy.MakeUnsafe(nSrcByte + 63)
				if i == 0 {
					for j := 0; j < nSrcByte; j++ {
						newArrSrc[j] = byte(j * 3)
					}
				} else {
					copy(newArrSrc[:nSrcByte], srcs[0])
				}
				dsts[i] = newArrDst[:nDstByte]
				srcs[i] = newArrSrc[:nSrcByte]
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = traverse.Each(c.nCpu, func(threadIdx int) error {
					nIter := (((threadIdx + 1) * nJob) / c.nCpu) - ((threadIdx * nJob) / c.nCpu)
					_ = bf(dsts[threadIdx], srcs[threadIdx], nIter)
					return nil
				})
			}
		})
		if !success {
			panic("benchmark failed")
		}
	}
}

// Copyright 2023 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// +build amd64,!appengine

package fastcopy

import (
	"os"
	"reflect"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// amd64 compile-time constants.

// BytesPerWord is the number of bytes in a machine word.
// We don't use unsafe.Sizeof(uintptr(1)) since there are advantages to having
// this as an untyped constant, and there's essentially no drawback since this
// is an _amd64-specific file.
const BytesPerWord = 8

// Log2BytesPerWord is log2(BytesPerWord).  This is relevant for manual
// bit-shifting when we know that's a safe way to divide and the compiler does
// not (e.g. dividend is of signed int type).
const Log2BytesPerWord = uint(3)

// bytesPerVec is the size of the widest block move CopyUnsafe may perform,
// and the unit of the capacity guarantee provided by MakeUnsafe and friends.
// It is 32 iff the 32-byte dispatch class is active, and 16 otherwise.
var bytesPerVec int

// log2BytesPerVec supports efficient division by bytesPerVec.
var log2BytesPerVec uint

// wideCopy enables the 32-byte dispatch class in CopyRaw.  A 32-byte block
// move is legal amd64 with or without AVX2; it just isn't profitable without.
var wideCopy bool

func init() {
	wideCopy = wideCopyWanted()
	if wideCopy {
		bytesPerVec = 32
		log2BytesPerVec = 5
	} else {
		bytesPerVec = 16
		log2BytesPerVec = 4
	}
}

// wideCopyWanted is resolved exactly once, at init().  FASTCOPY_NOWIDE is an
// escape hatch for machines where AVX2 use causes frequency-scaling trouble.
func wideCopyWanted() bool {
	return cpu.X86.HasAVX2 && os.Getenv("FASTCOPY_NOWIDE") == ""
}

// BytesPerVec is an accessor for the bytesPerVec package variable.
func BytesPerVec() int {
	return bytesPerVec
}

// RoundUpPow2 returns val rounded up to a multiple of alignment, assuming
// alignment is a power of 2.
func RoundUpPow2(val, alignment int) int {
	return (val + alignment - 1) & (^(alignment - 1))
}

// DivUpPow2 efficiently divides a number by a power-of-2 divisor.  (This works
// for negative dividends since the language specifies arithmetic right-shifts
// of signed numbers.)
func DivUpPow2(dividend, divisor int, log2Divisor uint) int {
	return (dividend + divisor - 1) >> log2Divisor
}

// MakeUnsafe returns a byte slice of the given length which is guaranteed to
// have enough capacity for all Unsafe functions in this package to work.  (It
// is not itself an unsafe function: allocated memory is zero-initialized.)
func MakeUnsafe(len int) []byte {
	// CopyUnsafe never touches more than RoundUpPow2(len, bytesPerVec)
	// capacity, but we add bytesPerVec instead to make subslicing safe.
	return make([]byte, len, len+bytesPerVec)
}

// extendBytes extends *bufptr without zero-initializing the new storage
// space.  The caller must guarantee that cap(*bufptr) >= newLen.
func extendBytes(bufptr *[]byte, newLen int) {
	bufHeader := (*reflect.SliceHeader)(unsafe.Pointer(bufptr))
	bufHeader.Len = newLen
}

// RemakeUnsafe reuses the given buffer if it has sufficient capacity;
// otherwise it does the same thing as MakeUnsafe.  It does NOT preserve
// existing contents of buf[]; use ResizeUnsafe() for that.
func RemakeUnsafe(bufptr *[]byte, len int) {
	minCap := len + bytesPerVec
	if minCap <= cap(*bufptr) {
		extendBytes(bufptr, len)
		return
	}
	// This is likely to be called in an inner loop processing variable-size
	// inputs, so mild exponential growth is appropriate.
	*bufptr = make([]byte, len, RoundUpPow2(minCap+(minCap/8), bytesPerVec))
}

// ResizeUnsafe changes the length of buf and ensures it has enough extra
// capacity to be passed to this package's Unsafe functions.  Existing buf[]
// contents are preserved (with possible truncation), though when length is
// increased, new bytes might not be zero-initialized.
func ResizeUnsafe(bufptr *[]byte, len int) {
	minCap := len + bytesPerVec
	if minCap <= cap(*bufptr) {
		extendBytes(bufptr, len)
		return
	}
	dst := make([]byte, len, RoundUpPow2(minCap+(minCap/8), bytesPerVec))
	copy(dst, *bufptr)
	*bufptr = dst
}

// XcapUnsafe is shorthand for ResizeUnsafe's most common use case (no length
// change, just want to ensure sufficient capacity).
func XcapUnsafe(bufptr *[]byte) {
	ResizeUnsafe(bufptr, len(*bufptr))
}

// CopyRaw assumes dst and src both point to arrays of (at least) nByte bytes,
// and that the two regions do not overlap.  It copies src[0:nByte] to
// dst[0:nByte], reading and writing nothing outside those ranges.  When nByte
// is zero, neither pointer is dereferenced, so nil/dangling pointers are
// fine.
//
// This is a low-level function; Copy() and CopyS() are the safe wrappers.
func CopyRaw(dst, src unsafe.Pointer, nByte int) {
	// Each class below issues exactly two block moves of the class width w,
	// one at offset 0 and one at offset nByte-w.  For any nByte in [w, 2w)
	// the two moves cover the whole range; where they overlap, both write
	// the same source byte.  So within a class the instruction sequence is
	// length-independent, and at nByte == w the two moves simply coincide.
	if nByte < 8 {
		if nByte >= 4 {
			*((*uint32)(dst)) = *((*uint32)(src))
			*((*uint32)(unsafe.Pointer(uintptr(dst) + uintptr(nByte) - 4))) = *((*uint32)(unsafe.Pointer(uintptr(src) + uintptr(nByte) - 4)))
			return
		}
		if nByte >= 2 {
			*((*uint16)(dst)) = *((*uint16)(src))
			*((*uint16)(unsafe.Pointer(uintptr(dst) + uintptr(nByte) - 2))) = *((*uint16)(unsafe.Pointer(uintptr(src) + uintptr(nByte) - 2)))
			return
		}
		if nByte == 1 {
			*((*byte)(dst)) = *((*byte)(src))
		}
		return
	}
	if nByte < 16 {
		*((*uint64)(dst)) = *((*uint64)(src))
		*((*uint64)(unsafe.Pointer(uintptr(dst) + uintptr(nByte) - 8))) = *((*uint64)(unsafe.Pointer(uintptr(src) + uintptr(nByte) - 8)))
		return
	}
	if nByte < 32 {
		*((*[16]byte)(dst)) = *((*[16]byte)(src))
		*((*[16]byte)(unsafe.Pointer(uintptr(dst) + uintptr(nByte) - 16))) = *((*[16]byte)(unsafe.Pointer(uintptr(src) + uintptr(nByte) - 16)))
		return
	}
	if wideCopy && nByte < 64 {
		*((*[32]byte)(dst)) = *((*[32]byte)(src))
		*((*[32]byte)(unsafe.Pointer(uintptr(dst) + uintptr(nByte) - 32))) = *((*[32]byte)(unsafe.Pointer(uintptr(src) + uintptr(nByte) - 32)))
		return
	}
	copyLongRaw(dst, src, nByte)
}

// copyLongRaw hands lengths past the widest dispatch class back to the
// built-in copy, whose memmove is well tuned for them.
func copyLongRaw(dst, src unsafe.Pointer, nByte int) {
	var dstSlice, srcSlice []byte
	dstHeader := (*reflect.SliceHeader)(unsafe.Pointer(&dstSlice))
	dstHeader.Data = uintptr(dst)
	dstHeader.Len = nByte
	dstHeader.Cap = nByte
	srcHeader := (*reflect.SliceHeader)(unsafe.Pointer(&srcSlice))
	srcHeader.Data = uintptr(src)
	srcHeader.Len = nByte
	srcHeader.Cap = nByte
	copy(dstSlice, srcSlice)
}

// Copy copies all bytes of src to dst.  It panics if len(src) != len(dst).
// dst and src must not overlap.  A zero-length copy is a no-op.
func Copy(dst, src []byte) {
	srcHeader := (*reflect.SliceHeader)(unsafe.Pointer(&src))
	dstHeader := (*reflect.SliceHeader)(unsafe.Pointer(&dst))
	nByte := srcHeader.Len
	if nByte != dstHeader.Len {
		panic("Copy() requires len(src) == len(dst).")
	}
	CopyRaw(unsafe.Pointer(dstHeader.Data), unsafe.Pointer(srcHeader.Data), nByte)
}

// CopyS is a variant of Copy() that takes string src.
func CopyS(dst []byte, src string) {
	srcHeader := (*reflect.StringHeader)(unsafe.Pointer(&src))
	dstHeader := (*reflect.SliceHeader)(unsafe.Pointer(&dst))
	nByte := srcHeader.Len
	if nByte != dstHeader.Len {
		panic("CopyS() requires len(src) == len(dst).")
	}
	CopyRaw(unsafe.Pointer(dstHeader.Data), unsafe.Pointer(srcHeader.Data), nByte)
}

// CopyUnsafe copies all bytes of src to dst with no length dispatch at all:
// the copy is rounded up to a whole number of bytesPerVec-byte block moves,
// so every slice no longer than one vector costs a single move.  len(src) ==
// len(dst) is assumed, not checked.
//
// WARNING: This is a function designed to be used in inner loops, which makes
// assumptions about length and capacity which aren't checked at runtime.  Use
// Copy() if any of the following properties are problematic.
// Assumptions #2-3 are always satisfied when the last
// potentially-size-increasing operation on src[] is {Re}makeUnsafe(),
// ResizeUnsafe(), or XcapUnsafe(), and the same is true for dst[].
//
// 1. len(src) and len(dst) are equal.
//
// 2. Capacities are at least RoundUpPow2(len(src) + 1, bytesPerVec).  (Both
// may be read up to that boundary, and dst may be written up to it.)
//
// 3. The caller does not care if a few bytes past the end of dst[] are
// changed.
func CopyUnsafe(dst, src []byte) {
	srcHeader := (*reflect.SliceHeader)(unsafe.Pointer(&src))
	dstHeader := (*reflect.SliceHeader)(unsafe.Pointer(&dst))
	srcIter := unsafe.Pointer(srcHeader.Data)
	dstIter := unsafe.Pointer(dstHeader.Data)
	nByte := srcHeader.Len
	if bytesPerVec == 32 {
		nVec := DivUpPow2(nByte, 32, 5)
		for vidx := 0; vidx < nVec; vidx++ {
			*((*[32]byte)(dstIter)) = *((*[32]byte)(srcIter))
			dstIter = unsafe.Pointer(uintptr(dstIter) + 32)
			srcIter = unsafe.Pointer(uintptr(srcIter) + 32)
		}
		return
	}
	nVec := DivUpPow2(nByte, 16, 4)
	for vidx := 0; vidx < nVec; vidx++ {
		*((*[16]byte)(dstIter)) = *((*[16]byte)(srcIter))
		dstIter = unsafe.Pointer(uintptr(dstIter) + 16)
		srcIter = unsafe.Pointer(uintptr(srcIter) + 16)
	}
}

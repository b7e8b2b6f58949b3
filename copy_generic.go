// Copyright 2023 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// +build !amd64,!appengine

package fastcopy

import (
	"reflect"
	"unsafe"
)

// Without a guarantee that misaligned word loads/stores are cheap, the
// double-move trick has no advantage over the built-in copy, so this build
// delegates everything to it.  The MakeUnsafe capacity conventions are still
// honored (CopyUnsafe is allowed to clobber padding, not required to).

// BytesPerWord is the number of bytes in a machine word.
const BytesPerWord = 8

// Log2BytesPerWord is log2(BytesPerWord).  This is relevant for manual
// bit-shifting when we know that's a safe way to divide and the compiler does
// not (e.g. dividend is of signed int type).
const Log2BytesPerWord = uint(3)

// bytesPerVec is the unit of the capacity guarantee provided by MakeUnsafe
// and friends.
var bytesPerVec int

// log2BytesPerVec supports efficient division by bytesPerVec.
var log2BytesPerVec uint

func init() {
	bytesPerVec = 16
	log2BytesPerVec = 4
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
	return make([]byte, len, len+bytesPerVec)
}

// RemakeUnsafe reuses the given buffer if it has sufficient capacity;
// otherwise it does the same thing as MakeUnsafe.  It does NOT preserve
// existing contents of buf[]; use ResizeUnsafe() for that.
func RemakeUnsafe(bufptr *[]byte, len int) {
	minCap := len + bytesPerVec
	if minCap <= cap(*bufptr) {
		*bufptr = (*bufptr)[:len]
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
		*bufptr = (*bufptr)[:len]
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
	if len(src) != len(dst) {
		panic("Copy() requires len(src) == len(dst).")
	}
	copy(dst, src)
}

// CopyS is a variant of Copy() that takes string src.
func CopyS(dst []byte, src string) {
	if len(src) != len(dst) {
		panic("CopyS() requires len(src) == len(dst).")
	}
	copy(dst, src)
}

// CopyUnsafe copies all bytes of src to dst.  len(src) == len(dst) is
// assumed, not checked.
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
	copy(dst, src)
}

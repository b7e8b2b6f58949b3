// Copyright 2023 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package fastcopy provides a byte-copy routine which is substantially faster
// than the built-in copy() for the short slices (up to a few dozen bytes)
// that dominate e.g. small-record serialization and field-extraction inner
// loops.  The built-in copy routine is tuned for medium-to-long slices; for
// short ones it spends most of its time branching on the length.
//
// The core trick: any length in [width, 2*width) can be handled by exactly
// two unconditional width-byte block moves, one anchored at the start of the
// slice and one at the end.  The blocks overlap in the middle, and both write
// the same source bytes to any position they share, so the result is
// identical to a byte-at-a-time copy while the instruction sequence is
// length-independent within each width class.  Dispatch is a short branch
// ladder on power-of-two width classes (2, 4, 8, 16, and optionally 32
// bytes); lengths at or past the widest class are delegated back to the
// built-in copy, whose large-slice code is excellent.
//
// The 32-byte class is only used when AVX2 is detected at init() time, since
// that is where 32-byte moves stop costing two instructions.  Setting the
// FASTCOPY_NOWIDE environment variable (to any nonempty value) disables the
// 32-byte class; the set of correctly handled inputs is the same either way.
// Non-amd64 and appengine builds delegate everything to the built-in copy.
//
// Two classes of functions are exported:
//
// - Functions with 'Unsafe' in their names are very performant, but are
// memory-unsafe, do not validate documented preconditions, and may have the
// unusual property of reading/writing to a few bytes *past* the end of the
// given slices.  The MakeUnsafe() function and its relatives allocate
// byte-slices with sufficient extra capacity for all Unsafe functions with
// the latter property to work properly.
//
// - Their safe analogues work properly on ordinary slices, and panic when
// documented length preconditions are not met.  They never read or write
// outside the given slices.
//
// None of the functions in this package support overlapping src and dst:
// they copy in width-sized blocks rather than bytes, so an overlapping move
// would produce garbage in the overlap.  Use the built-in copy when ranges
// may overlap.
package fastcopy

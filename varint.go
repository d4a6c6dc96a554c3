// Copyright 2024 The jsonkit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package omap

import "unsafe"

// The varint codec stores unsigned integers as base-128 groups, low group
// first. Every group except the last carries the continuation bit (0x80);
// the decoder stops at the first group with the bit clear. The encoding is
// identical to encoding/binary's unsigned varint, but operates on raw
// memory because it is used to read and write the key-length prefix inside
// an element allocation, which is not bounded by a Go slice.

// uvarintSize returns the number of bytes putUvarint will emit for v. The
// result is at least 1.
func uvarintSize(v uint64) int {
	n := 1
	for v > 0x7f {
		v >>= 7
		n++
	}
	return n
}

// putUvarint encodes v at p and returns the number of bytes written. The
// caller must ensure at least uvarintSize(v) bytes are addressable at p.
func putUvarint(p unsafe.Pointer, v uint64) int {
	n := 0
	for v > 0x7f {
		*(*byte)(unsafe.Add(p, n)) = byte(v) | 0x80
		v >>= 7
		n++
	}
	*(*byte)(unsafe.Add(p, n)) = byte(v)
	return n + 1
}

// readUvarint decodes the value encoded at p, returning it along with the
// number of bytes consumed.
func readUvarint(p unsafe.Pointer) (uint64, int) {
	var v uint64
	var shift uint
	n := 0
	for {
		b := *(*byte)(unsafe.Add(p, n))
		n++
		v |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return v, n
		}
		shift += 7
	}
}

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

import (
	"strings"
	"unsafe"
)

// element is the fixed header of one map entry. Each entry is a single
// variable-size allocation laid out as:
//
//	element header
//	key length (varint)
//	key bytes
//	one NUL byte
//	padding to the payload's alignment
//	payload V
//
// The layout is process-local; it is never persisted or transmitted.
//
// local links entries hashing to the same bucket (singly linked, chain
// order unspecified). prev/next link all live entries in insertion order.
// The order list is bounded by the owning table's end sentinel: the last
// entry's next points at the sentinel, and the sentinel's prev points back
// at the last entry. The head entry's prev and the sentinel's next are
// never read. An entry belongs to exactly one of a table, a node handle, or
// a staging list at any instant.
type element struct {
	local *element
	prev  *element
	next  *element
}

const (
	elementHeaderSize = unsafe.Sizeof(element{})
	elementAlign      = unsafe.Alignof(element{})
)

// keyBase returns the address of the varint key-length prefix.
func (e *element) keyBase() unsafe.Pointer {
	return unsafe.Add(unsafe.Pointer(e), elementHeaderSize)
}

func (e *element) keyLen() int {
	n, _ := readUvarint(e.keyBase())
	return int(n)
}

// keyString returns the entry's key as a string view over the inline bytes.
// The view is valid only while the entry is alive.
func (e *element) keyString() string {
	n, vn := readUvarint(e.keyBase())
	if n == 0 {
		return ""
	}
	return unsafe.String((*byte)(unsafe.Add(e.keyBase(), vn)), int(n))
}

func (e *element) keyEqual(key string) bool {
	return e.keyString() == key
}

// elementLayout computes the allocation size, payload offset, and required
// alignment for an entry holding a key of keyLen bytes and a payload of
// type V. The same computation sizes the release of the entry.
func elementLayout[V any](keyLen int) (total, payloadOff, align uintptr) {
	var v V
	palign := unsafe.Alignof(v)
	align = elementAlign
	if palign > align {
		align = palign
	}
	off := elementHeaderSize + uintptr(uvarintSize(uint64(keyLen))) + uintptr(keyLen) + 1
	payloadOff = (off + palign - 1) &^ (palign - 1)
	total = payloadOff + unsafe.Sizeof(v)
	return total, payloadOff, align
}

// elemValue returns a pointer to the entry's inline payload.
func elemValue[V any](e *element) *V {
	_, off, _ := elementLayout[V](e.keyLen())
	return (*V)(unsafe.Add(unsafe.Pointer(e), off))
}

// newElement allocates and initializes an entry for key from store. The
// payload is left zeroed; the caller constructs it in place. Keys must not
// contain a NUL byte.
func newElement[V any](store Storage, key string) (*element, error) {
	if invariants && strings.IndexByte(key, 0) >= 0 {
		panic("omap: key contains NUL")
	}
	total, payloadOff, align := elementLayout[V](len(key))
	p, err := store.Allocate(total, align)
	if err != nil {
		return nil, err
	}
	e := (*element)(p)
	e.local, e.prev, e.next = nil, nil, nil
	kp := e.keyBase()
	n := putUvarint(kp, uint64(len(key)))
	copy(unsafe.Slice((*byte)(unsafe.Add(kp, n)), len(key)), key)
	*(*byte)(unsafe.Add(kp, n+len(key))) = 0
	var zero V
	*(*V)(unsafe.Add(p, payloadOff)) = zero
	return e, nil
}

// destroyElement runs the optional payload release hook and returns the
// entry's memory to store, with the exact size and alignment it was
// allocated with.
func destroyElement[V any](store Storage, release func(*V), e *element) {
	if release != nil {
		release(elemValue[V](e))
	}
	total, _, align := elementLayout[V](e.keyLen())
	store.Deallocate(unsafe.Pointer(e), total, align)
}

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

const rawStackMinCapacity = 1024

// rawStack is a growable stack of raw bytes drawn from a Storage. The deep
// rebuild paths use one to hold pointers to staged entries so that a
// half-built copy can be torn down without touching the destination. Growth
// relocates the base, so callers must not retain addresses across pushes.
type rawStack struct {
	store Storage
	base  unsafe.Pointer
	size  uintptr
	cap   uintptr
}

func newRawStack(store Storage) rawStack {
	return rawStack{store: store}
}

// push reserves n more bytes and returns their address.
func (s *rawStack) push(n uintptr) (unsafe.Pointer, error) {
	if n > s.cap-s.size {
		if err := s.grow(n - (s.cap - s.size)); err != nil {
			return nil, err
		}
	}
	p := unsafe.Add(s.base, s.size)
	s.size += n
	return p, nil
}

// pop removes the top n bytes and returns their address. The address is
// valid until the next push.
func (s *rawStack) pop(n uintptr) unsafe.Pointer {
	if invariants && n > s.size {
		panic("omap: raw stack underflow")
	}
	s.size -= n
	return unsafe.Add(s.base, s.size)
}

// at returns the address of the byte at offset off from the bottom.
func (s *rawStack) at(off uintptr) unsafe.Pointer {
	if invariants && off >= s.size {
		panic("omap: raw stack offset out of range")
	}
	return unsafe.Add(s.base, off)
}

func (s *rawStack) add(n uintptr) error {
	if n > s.cap-s.size {
		if err := s.grow(n - (s.cap - s.size)); err != nil {
			return err
		}
	}
	s.size += n
	return nil
}

func (s *rawStack) subtract(n uintptr) {
	if invariants && n > s.size {
		panic("omap: raw stack underflow")
	}
	s.size -= n
}

// release returns the stack's memory to its Storage. The stack is reusable
// afterwards.
func (s *rawStack) release() {
	if s.base != nil {
		s.store.Deallocate(s.base, s.cap, elementAlign)
		s.base = nil
		s.size = 0
		s.cap = 0
	}
}

func (s *rawStack) grow(n uintptr) error {
	newCap := s.cap * 2
	if newCap < rawStackMinCapacity {
		newCap = rawStackMinCapacity
	}
	for newCap < s.cap+n {
		newCap *= 2
	}
	p, err := s.store.Allocate(newCap, elementAlign)
	if err != nil {
		return err
	}
	if s.base != nil {
		copy(unsafe.Slice((*byte)(p), s.size), unsafe.Slice((*byte)(s.base), s.size))
		s.store.Deallocate(s.base, s.cap, elementAlign)
	}
	s.base = p
	s.cap = newCap
	return nil
}

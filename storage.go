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
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// Storage supplies raw memory for elements and tables. Every Allocate must
// be matched by a Deallocate with the identical size and alignment; the
// container computes allocation sizes before allocating and hands the same
// sizes back on release.
//
// Storage values are compared by identity (Go interface equality), never by
// content, to decide whether two Objects can exchange memory directly.
// Implementations must therefore have a comparable, pointer-shaped dynamic
// type. An Object does not synchronize access to its Storage; a Storage
// shared across goroutines must synchronize itself.
type Storage interface {
	// Allocate returns a block of at least size bytes aligned to align, or
	// an error if the allocation cannot be satisfied. align is always a
	// power of two no greater than 8.
	Allocate(size, align uintptr) (unsafe.Pointer, error)

	// Deallocate releases a block previously returned by Allocate on this
	// Storage. size and align must equal the values passed to Allocate.
	Deallocate(p unsafe.Pointer, size, align uintptr)
}

// heapStorage is the default Storage. It allocates from the Go heap and
// retains every live block in a registry. The retention is load-bearing:
// elements hold links to one another inside pointerless byte memory where
// the collector cannot see them, so each block must stay reachable from the
// registry until it is explicitly deallocated.
//
// Blocks are pointerless as far as the runtime is concerned, so payloads
// that contain Go pointers must be kept alive by the caller for as long as
// they are stored.
type heapStorage struct {
	mu   sync.Mutex
	live map[unsafe.Pointer]heapBlock
}

type heapBlock struct {
	buf   []byte
	size  uintptr
	align uintptr
}

// NewStorage returns a fresh heap-backed Storage with its own identity.
// Objects created without WithStorage all share the single storage returned
// by DefaultStorage instead.
func NewStorage() Storage {
	return &heapStorage{live: make(map[unsafe.Pointer]heapBlock)}
}

var defaultStorage = NewStorage()

// DefaultStorage returns the process-wide Storage used by Objects that were
// not configured with WithStorage.
func DefaultStorage() Storage {
	return defaultStorage
}

func (s *heapStorage) Allocate(size, align uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, errors.New("omap: zero-size allocation")
	}
	// The Go heap aligns byte allocations of at least 8 bytes to 8 bytes,
	// which covers every alignment the container requests. Sub-8 requests
	// are padded out of the tiny allocator's reach.
	n := size
	if n < 8 {
		n = 8
	}
	buf := make([]byte, n)
	p := unsafe.Pointer(unsafe.SliceData(buf))
	s.mu.Lock()
	s.live[p] = heapBlock{buf: buf, size: size, align: align}
	s.mu.Unlock()
	return p, nil
}

func (s *heapStorage) Deallocate(p unsafe.Pointer, size, align uintptr) {
	s.mu.Lock()
	blk, ok := s.live[p]
	delete(s.live, p)
	s.mu.Unlock()
	if invariants {
		if !ok {
			panic("omap: deallocate of unknown block")
		}
		if blk.size != size || blk.align != align {
			panic("omap: deallocate size/align mismatch")
		}
	}
}

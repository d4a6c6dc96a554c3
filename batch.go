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

import "github.com/pkg/errors"

// Batch stages a bulk insertion. Added entries are threaded onto a scratch
// list through their order links and touch none of the Object's live
// structures until Commit, so an allocation failure at any point destroys
// only the staged entries and leaves the Object exactly as it was.
//
// Commit resizes the table once for the full projected size, then links the
// staged entries in order. Duplicate resolution is first-wins: a staged
// entry whose key matches an already-committed entry (pre-existing or
// earlier in the same batch) is discarded and the existing payload kept.
type Batch[V any] struct {
	o          *Object[V]
	head, tail *element
	n          int
	err        error
}

// NewBatch returns an empty Batch targeting o.
func (o *Object[V]) NewBatch() *Batch[V] {
	return &Batch[V]{o: o}
}

// Len returns the number of staged entries.
func (b *Batch[V]) Len() int {
	return b.n
}

// Add stages value under key. On allocation failure every staged entry is
// destroyed, the target Object is untouched, and the Batch refuses further
// use until Discard resets it.
func (b *Batch[V]) Add(key string, value V) error {
	if b.err != nil {
		return b.err
	}
	e, err := newElement[V](b.o.store, key)
	if err != nil {
		b.fail(errors.Wrap(err, "omap: batch add"))
		return b.err
	}
	*elemValue[V](e) = value
	if b.tail == nil {
		b.head = e
	} else {
		b.tail.next = e
		e.prev = b.tail
	}
	b.tail = e
	b.n++
	return nil
}

// Commit links the staged entries into the Object in the order they were
// added, first-wins on duplicate keys. The table is grown once up front for
// the projected size; on failure the staged entries are destroyed and the
// Object keeps its pre-Commit state. After a successful Commit the Batch is
// empty and reusable.
func (b *Batch[V]) Commit() error {
	if b.err != nil {
		return b.err
	}
	if b.n == 0 {
		return nil
	}
	o := b.o
	if err := o.Reserve(o.Len() + b.n); err != nil {
		b.fail(err)
		return b.err
	}
	for e := b.head; e != nil; {
		next := e.next
		e.prev, e.next = nil, nil
		dup, h := o.find(e.keyString())
		if dup != nil {
			destroyElement(o.store, o.release, e)
		} else if err := o.link(nil, h, e); err != nil {
			// Unreachable: the table was reserved for the whole batch, so
			// linking cannot trigger a rehash.
			destroyElement(o.store, o.release, e)
			b.head = next
			if next == nil {
				b.tail = nil
			}
			b.fail(err)
			return b.err
		}
		b.n--
		e = next
	}
	b.head, b.tail, b.n = nil, nil, 0
	o.checkInvariants()
	return nil
}

// Discard destroys all staged entries and resets the Batch, including after
// a failure.
func (b *Batch[V]) Discard() {
	b.discardStaged()
	b.err = nil
}

func (b *Batch[V]) fail(err error) {
	b.discardStaged()
	b.err = err
}

func (b *Batch[V]) discardStaged() {
	for e := b.head; e != nil; {
		next := e.next
		destroyElement(b.o.store, b.o.release, e)
		e = next
	}
	b.head, b.tail, b.n = nil, nil, 0
}

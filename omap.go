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

// Package omap implements the associative container backing a JSON object
// value: a map from byte-string keys to payloads that preserves key
// insertion order.
//
// # Design
//
// The container is an open-hashing table (separate chaining) combined with
// an intrusive doubly-linked order list. Both structures share the same
// storage slots: every entry is a single variable-size allocation holding a
// bucket-chain link, two order-list links, the varint-length-prefixed key
// bytes, and the payload, in that order. Bucket counts are drawn from a
// fixed prime sequence and bucket placement is hash mod bucket count, so
// tables never rely on low-bit entropy of the hash. Growth multiplies
// capacity through the prime sequence, making insertion amortized O(1);
// lookup and removal are O(1) average and O(chain length) worst case.
//
// Iteration yields entries in the exact order of successful insertions,
// regardless of intervening rehashes: rehashing rebuilds only the bucket
// chains and transplants the order list untouched.
//
// Memory comes from an injected Storage compared by identity. Two Objects
// sharing a Storage can exchange whole tables (Take, Swap) and individual
// entries (Extract, InsertNode) without copying or reconstructing payloads;
// across different Storages a deep, order-preserving copy is performed.
// Every mutating operation that allocates is all-or-nothing: if the Storage
// reports failure, the Object is left exactly as it was before the call.
//
// An Object is not goroutine-safe.
package omap

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/pkg/errors"
)

const debug = false

// Object is an insertion-ordered map from string keys to payloads of type
// V. The zero value is not usable; construct Objects with New.
//
// Payloads are stored inline in entry allocations. A payload that contains
// Go pointers must be kept alive by the caller for as long as it is stored,
// because entry memory is invisible to the garbage collector.
type Object[V any] struct {
	// tab is nil until the first reservation or insert.
	tab     *table
	store   Storage
	maxLoad float64
	release func(*V)
}

// New constructs an Object with capacity for at least initialCapacity
// entries. If initialCapacity is 0, the table is allocated lazily on the
// first reservation or insert.
func New[V any](initialCapacity int, opts ...Option[V]) (*Object[V], error) {
	o := &Object[V]{
		store:   defaultStorage,
		maxLoad: 1.0,
	}
	for _, op := range opts {
		op.apply(o)
	}
	if o.maxLoad <= 0 {
		return nil, errors.New("omap: max load factor must be positive")
	}
	if o.store == nil {
		return nil, errors.New("omap: nil storage")
	}
	if initialCapacity > 0 {
		if err := o.Reserve(initialCapacity); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Close destroys all entries and releases the table back to the Object's
// Storage. Close is idempotent; the Object is reusable afterwards (it
// behaves as if freshly constructed with zero capacity).
func (o *Object[V]) Close() {
	t := o.tab
	if t == nil {
		return
	}
	for e := t.head; e != t.endPtr(); {
		next := e.next
		destroyElement(o.store, o.release, e)
		e = next
	}
	freeTable(o.store, t)
	o.tab = nil
}

// Clear destroys all entries but keeps the table's bucket array, so the
// Object retains its capacity.
func (o *Object[V]) Clear() {
	t := o.tab
	if t == nil {
		return
	}
	for e := t.head; e != t.endPtr(); {
		next := e.next
		destroyElement(o.store, o.release, e)
		e = next
	}
	t.count = 0
	t.head = t.endPtr()
	t.end.prev = t.endPtr()
	for i := 0; i < t.bucketCount; i++ {
		*t.bucket(i) = nil
	}
	o.checkInvariants()
}

// Len returns the number of entries.
func (o *Object[V]) Len() int {
	if o.tab == nil {
		return 0
	}
	return o.tab.count
}

// Empty reports whether the Object holds no entries.
func (o *Object[V]) Empty() bool {
	return o.Len() == 0
}

// BucketCount returns the current number of buckets, always a member of the
// prime sequence (or 0 before the table exists).
func (o *Object[V]) BucketCount() int {
	if o.tab == nil {
		return 0
	}
	return o.tab.bucketCount
}

// Cap returns the number of entries the Object can hold without growing.
func (o *Object[V]) Cap() int {
	if o.tab == nil {
		return 0
	}
	return int(float64(o.tab.bucketCount) * o.maxLoad)
}

// MaxLoadFactor returns the configured maximum of Len()/BucketCount().
func (o *Object[V]) MaxLoadFactor() float64 {
	return o.maxLoad
}

// SetMaxLoadFactor changes the maximum load factor, rehashing immediately
// if the current load exceeds the new maximum. On failure the previous
// maximum is retained.
func (o *Object[V]) SetMaxLoadFactor(maxLoad float64) error {
	if maxLoad <= 0 {
		return errors.New("omap: max load factor must be positive")
	}
	prev := o.maxLoad
	o.maxLoad = maxLoad
	if o.tab != nil && float64(o.tab.count) > float64(o.tab.bucketCount)*maxLoad {
		if err := o.Rehash(int(math.Ceil(float64(o.tab.count) / maxLoad))); err != nil {
			o.maxLoad = prev
			return err
		}
	}
	o.checkInvariants()
	return nil
}

// find walks the key's bucket chain comparing keys byte for byte. The
// computed hash is returned either way so an insert following a miss need
// not recompute it.
func (o *Object[V]) find(key string) (*element, uintptr) {
	h := hashKey(key)
	if o.tab == nil {
		return nil, h
	}
	for e := *o.tab.bucket(constrain(h, o.tab.bucketCount)); e != nil; e = e.local {
		if e.keyEqual(key) {
			return e, h
		}
	}
	return nil, h
}

// Get returns a pointer to the payload stored under key, or ok=false if the
// key is not present. The pointer remains valid until the entry is erased,
// extracted, or the Object is closed; rehashing does not move entries.
func (o *Object[V]) Get(key string) (value *V, ok bool) {
	e, _ := o.find(key)
	if e == nil {
		return nil, false
	}
	return elemValue[V](e), true
}

// At returns a pointer to the payload stored under key, or an error
// satisfying errors.Is(err, ErrKeyNotFound) if the key is not present.
func (o *Object[V]) At(key string) (*V, error) {
	e, _ := o.find(key)
	if e == nil {
		return nil, errors.Wrapf(ErrKeyNotFound, "%q", key)
	}
	return elemValue[V](e), nil
}

// Contains reports whether key is present.
func (o *Object[V]) Contains(key string) bool {
	e, _ := o.find(key)
	return e != nil
}

// Count returns the number of entries stored under key: 0 or 1.
func (o *Object[V]) Count(key string) int {
	if o.Contains(key) {
		return 1
	}
	return 0
}

// Find returns a cursor positioned at key's entry, or an invalid cursor if
// the key is not present.
func (o *Object[V]) Find(key string) Cursor[V] {
	e, _ := o.find(key)
	return o.cursor(e)
}

// link inserts e, known not to duplicate an existing key, into the bucket
// selected by h and into the order list immediately before the entry
// `before` (nil means the end sentinel, i.e. append). Grows the table first
// when the insertion would exceed the maximum load factor; this is the only
// path that changes the bucket count as a side effect of insertion. On
// failure e is untouched and unowned; callers guard it.
func (o *Object[V]) link(before *element, h uintptr, e *element) error {
	t := o.tab
	if t == nil || float64(t.count+1) > float64(t.bucketCount)*o.maxLoad {
		n := 1
		if t != nil {
			n = t.count + 1
		}
		if err := o.Rehash(int(math.Ceil(float64(n) / o.maxLoad))); err != nil {
			return err
		}
		t = o.tab
	}

	b := t.bucket(constrain(h, t.bucketCount))
	e.local = *b
	*b = e

	end := t.endPtr()
	if before == nil {
		before = end
	}
	if before == end {
		if t.head == end {
			t.head = e
		} else {
			tail := t.end.prev
			tail.next = e
			e.prev = tail
		}
		e.next = end
		t.end.prev = e
	} else {
		e.next = before
		if before == t.head {
			t.head = e
		} else {
			p := before.prev
			p.next = e
			e.prev = p
		}
		before.prev = e
	}
	t.count++
	if debug {
		fmt.Printf("link(%q): size=%d buckets=%d\n", e.keyString(), t.count, t.bucketCount)
	}
	return nil
}

// unlink removes e from the order list and its bucket chain without
// destroying it, and returns the next entry in insertion order (the end
// sentinel if e was last).
func (o *Object[V]) unlink(e *element) *element {
	t := o.tab
	end := t.endPtr()
	next := e.next
	if e == t.head {
		t.head = next
		if next == end {
			t.end.prev = end
		}
	} else {
		e.prev.next = next
		if next == end {
			t.end.prev = e.prev
		} else {
			next.prev = e.prev
		}
	}

	b := t.bucket(constrain(hashKey(e.keyString()), t.bucketCount))
	if *b == e {
		*b = e.local
	} else {
		p := *b
		for p.local != e {
			p = p.local
		}
		p.local = e.local
	}
	e.local, e.prev, e.next = nil, nil, nil
	t.count--
	return next
}

// Insert stores value under key and returns a pointer to the stored
// payload. If the key is already present the existing payload is retained
// unchanged and inserted is false. New entries are appended to the
// iteration order.
func (o *Object[V]) Insert(key string, value V) (v *V, inserted bool, err error) {
	return o.insertBefore(nil, key, func(p *V) { *p = value })
}

// InsertBefore is Insert, but a new entry is spliced into the iteration
// order immediately before the cursor position instead of at the end. An
// invalid cursor means the end position. The duplicate policy is the same
// as Insert's: the position hint is ignored for keys already present.
func (o *Object[V]) InsertBefore(c Cursor[V], key string, value V) (v *V, inserted bool, err error) {
	if invariants && c.e != nil && c.o != o {
		panic("omap: cursor belongs to a different Object")
	}
	return o.insertBefore(c.e, key, func(p *V) { *p = value })
}

// Emplace is Insert with an injected payload builder: on a miss a new entry
// is created and build is invoked with the address of its zeroed payload.
// A nil build leaves the payload zero.
func (o *Object[V]) Emplace(key string, build func(*V)) (v *V, inserted bool, err error) {
	return o.insertBefore(nil, key, build)
}

// GetOrInsert returns a pointer to the payload stored under key, inserting
// an entry with a zero payload at the end of the iteration order if the key
// is not present.
func (o *Object[V]) GetOrInsert(key string) (*V, error) {
	v, _, err := o.insertBefore(nil, key, nil)
	return v, err
}

func (o *Object[V]) insertBefore(before *element, key string, build func(*V)) (*V, bool, error) {
	if e, h := o.find(key); e != nil {
		return elemValue[V](e), false, nil
	} else {
		ne, err := newElement[V](o.store, key)
		if err != nil {
			return nil, false, errors.Wrap(err, "omap: insert")
		}
		g := destroyGuard[V]{store: o.store, release: o.release, e: ne}
		defer g.rollback()
		if build != nil {
			build(elemValue[V](ne))
		}
		if err := o.link(before, h, ne); err != nil {
			return nil, false, err
		}
		g.commit()
		o.checkInvariants()
		return elemValue[V](ne), true, nil
	}
}

// Delete removes the entry stored under key, destroying its payload, and
// reports whether an entry was removed.
func (o *Object[V]) Delete(key string) bool {
	e, _ := o.find(key)
	if e == nil {
		return false
	}
	o.unlink(e)
	destroyElement(o.store, o.release, e)
	o.checkInvariants()
	return true
}

// EraseAt removes the entry at the cursor position and returns a cursor to
// the next entry in insertion order. The cursor must be valid and belong to
// this Object.
func (o *Object[V]) EraseAt(c Cursor[V]) Cursor[V] {
	if invariants && (c.e == nil || c.o != o) {
		panic("omap: erase of invalid cursor")
	}
	next := o.unlink(c.e)
	destroyElement(o.store, o.release, c.e)
	o.checkInvariants()
	return o.cursor(next)
}

// Rehash sets the bucket count to the smallest member of the prime sequence
// that is >= n, except that it never shrinks below the minimum needed to
// keep the current size within the maximum load factor. Entries are not
// moved or copied; only the table header and bucket chains are rebuilt.
func (o *Object[V]) Rehash(n int) error {
	if o.tab == nil && n == 0 {
		return nil
	}
	target := nextPrime(n)
	cur, size := 0, 0
	if o.tab != nil {
		cur, size = o.tab.bucketCount, o.tab.count
	}
	if target == cur {
		return nil
	}
	if target < cur {
		floor := nextPrime(int(math.Ceil(float64(size) / o.maxLoad)))
		if target < floor {
			target = floor
		}
		if target >= cur {
			return nil
		}
	}

	nt, err := newTable(o.store, target)
	if err != nil {
		return errors.Wrap(err, "omap: rehash")
	}
	if debug {
		fmt.Printf("rehash: buckets=%d->%d size=%d\n", cur, target, size)
	}
	if o.tab != nil {
		if size > 0 {
			// Transplant the order list: hand off the head pointer and
			// repoint the tail at the new end sentinel. Interior order
			// links are untouched.
			nt.count = size
			nt.head = o.tab.head
			tail := o.tab.end.prev
			tail.next = nt.endPtr()
			nt.end.prev = tail
		}
		freeTable(o.store, o.tab)
	}
	o.tab = nt

	// One walk of the order list rethreads every bucket chain,
	// push-to-front.
	for e := nt.head; e != nt.endPtr(); e = e.next {
		b := nt.bucket(constrain(hashKey(e.keyString()), target))
		e.local = *b
		*b = e
	}
	o.checkInvariants()
	return nil
}

// Reserve grows the table so that n entries fit without exceeding the
// maximum load factor.
func (o *Object[V]) Reserve(n int) error {
	return o.Rehash(int(math.Ceil(float64(n) / o.maxLoad)))
}

// All calls yield for each entry in insertion order until yield returns
// false. The entry passed to yield may be deleted during the call; any
// other mutation of the Object invalidates the iteration.
func (o *Object[V]) All(yield func(key string, value *V) bool) {
	if o.tab == nil {
		return
	}
	end := o.tab.endPtr()
	for e := o.tab.head; e != end; {
		next := e.next
		if !yield(e.keyString(), elemValue[V](e)) {
			return
		}
		e = next
	}
}

// AllBucket calls yield for each entry in the bucket that key hashes to,
// in chain order, whether or not the entries' keys equal key. It visits
// nothing if the table is empty.
func (o *Object[V]) AllBucket(key string, yield func(key string, value *V) bool) {
	if o.tab == nil {
		return
	}
	h := hashKey(key)
	for e := *o.tab.bucket(constrain(h, o.tab.bucketCount)); e != nil; e = e.local {
		if !yield(e.keyString(), elemValue[V](e)) {
			return
		}
	}
}

// Clone returns a deep copy of the Object under the given Storage (nil
// means the receiver's own Storage), preserving insertion order. On failure
// nothing is leaked and the receiver is untouched.
func (o *Object[V]) Clone(store Storage) (*Object[V], error) {
	if store == nil {
		store = o.store
	}
	c := &Object[V]{store: store, maxLoad: o.maxLoad, release: o.release}
	n := o.Len()
	if n == 0 {
		return c, nil
	}

	const ptrSize = unsafe.Sizeof((*element)(nil))
	stk := newRawStack(store)
	defer stk.release()

	fail := func(linked int, err error) error {
		// Destroy staged copies that were never linked, newest first, then
		// tear down whatever has already been linked into the clone.
		for stk.size > uintptr(linked)*ptrSize {
			destroyElement(store, c.release, *(**element)(stk.pop(ptrSize)))
		}
		c.Close()
		return err
	}

	// Stage copies of every entry before touching the clone's table, so a
	// failure partway leaves only the staging stack to clean up.
	for e := o.tab.head; e != o.tab.endPtr(); e = e.next {
		ne, err := newElement[V](store, e.keyString())
		if err != nil {
			return nil, fail(0, errors.Wrap(err, "omap: clone"))
		}
		*elemValue[V](ne) = *elemValue[V](e)
		p, err := stk.push(ptrSize)
		if err != nil {
			destroyElement(store, c.release, ne)
			return nil, fail(0, errors.Wrap(err, "omap: clone"))
		}
		*(**element)(p) = ne
	}
	if err := c.Reserve(n); err != nil {
		return nil, fail(0, err)
	}
	for i := 0; i < n; i++ {
		ne := *(**element)(stk.at(uintptr(i) * ptrSize))
		if err := c.link(nil, hashKey(ne.keyString()), ne); err != nil {
			return nil, fail(i, err)
		}
	}
	c.checkInvariants()
	return c, nil
}

// Take moves src's contents into o, destroying o's previous contents and
// leaving src empty. When both Objects share a Storage the table pointer is
// handed off without touching any entry; otherwise a deep copy under o's
// Storage is performed first, and on failure both Objects are untouched.
func (o *Object[V]) Take(src *Object[V]) error {
	if src == o {
		return nil
	}
	if src.store == o.store {
		o.Close()
		o.tab = src.tab
		src.tab = nil
		return nil
	}
	c, err := src.Clone(o.store)
	if err != nil {
		return err
	}
	o.Close()
	o.tab = c.tab
	src.Clear()
	return nil
}

// Swap exchanges the contents of two Objects. When both share a Storage
// this is a pointer exchange; otherwise each side is rebuilt by deep copy
// under the other's Storage, and on failure both Objects are untouched.
// Each Object keeps its own Storage either way.
func (o *Object[V]) Swap(other *Object[V]) error {
	if other == o {
		return nil
	}
	if o.store == other.store {
		o.tab, other.tab = other.tab, o.tab
	} else {
		co, err := other.Clone(o.store)
		if err != nil {
			return err
		}
		cb, err := o.Clone(other.store)
		if err != nil {
			co.Close()
			return err
		}
		o.Close()
		other.Close()
		o.tab, other.tab = co.tab, cb.tab
	}
	o.maxLoad, other.maxLoad = other.maxLoad, o.maxLoad
	o.release, other.release = other.release, o.release
	return nil
}

// Cursor is a position within an Object's insertion order. Cursors other
// than end positions stay valid across rehashes; erasing or extracting the
// entry a cursor points at invalidates it.
type Cursor[V any] struct {
	o *Object[V]
	e *element
}

func (o *Object[V]) cursor(e *element) Cursor[V] {
	if e == nil || (o.tab != nil && e == o.tab.endPtr()) {
		return Cursor[V]{o: o}
	}
	return Cursor[V]{o: o, e: e}
}

// First returns a cursor at the first entry in insertion order, or an
// invalid cursor if the Object is empty.
func (o *Object[V]) First() Cursor[V] {
	if o.tab == nil {
		return Cursor[V]{o: o}
	}
	return o.cursor(o.tab.head)
}

// Valid reports whether the cursor points at an entry.
func (c Cursor[V]) Valid() bool {
	return c.e != nil
}

// Key returns the key of the entry at the cursor.
func (c Cursor[V]) Key() string {
	return c.e.keyString()
}

// Value returns a pointer to the payload of the entry at the cursor.
func (c Cursor[V]) Value() *V {
	return elemValue[V](c.e)
}

// Next returns a cursor at the following entry in insertion order, or an
// invalid cursor past the last entry.
func (c Cursor[V]) Next() Cursor[V] {
	return c.o.cursor(c.e.next)
}

func (o *Object[V]) checkInvariants() {
	if !invariants {
		return
	}
	t := o.tab
	if t == nil {
		return
	}
	if !isBucketPrime(t.bucketCount) {
		panic(fmt.Sprintf("invariant failed: bucket count %d not in the prime sequence", t.bucketCount))
	}
	if float64(t.count) > float64(t.bucketCount)*o.maxLoad {
		panic(fmt.Sprintf("invariant failed: size %d exceeds %d buckets * max load %g",
			t.count, t.bucketCount, o.maxLoad))
	}
	n := 0
	var last *element
	for e := t.head; e != t.endPtr(); e = e.next {
		n++
		if n > t.count {
			panic("invariant failed: order list longer than size")
		}
		if last != nil && e.prev != last {
			panic(fmt.Sprintf("invariant failed: broken prev link at %q", e.keyString()))
		}
		found := false
		for x := *t.bucket(constrain(hashKey(e.keyString()), t.bucketCount)); x != nil; x = x.local {
			if x == e {
				found = true
				break
			}
		}
		if !found {
			panic(fmt.Sprintf("invariant failed: %q missing from its bucket chain", e.keyString()))
		}
		last = e
	}
	if n != t.count {
		panic(fmt.Sprintf("invariant failed: order list has %d entries, size is %d", n, t.count))
	}
	if n > 0 && t.end.prev != last {
		panic("invariant failed: end sentinel prev is not the tail")
	}
	chained := 0
	for i := 0; i < t.bucketCount; i++ {
		for x := *t.bucket(i); x != nil; x = x.local {
			chained++
		}
	}
	if chained != t.count {
		panic(fmt.Sprintf("invariant failed: bucket chains hold %d entries, size is %d", chained, t.count))
	}
}

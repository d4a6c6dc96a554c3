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

// Node is a detached entry together with the Storage it was allocated from.
// A non-empty Node owns its entry exclusively until it is either destroyed
// or reinserted into an Object using the same Storage identity. The payload
// keeps its storage address across an extract/reinsert round trip; it is
// never reconstructed.
type Node[V any] struct {
	store   Storage
	release func(*V)
	e       *element
}

// Empty reports whether the Node holds no entry.
func (n *Node[V]) Empty() bool {
	return n.e == nil
}

// Key returns the key of the held entry.
func (n *Node[V]) Key() string {
	return n.e.keyString()
}

// Value returns a pointer to the held entry's payload.
func (n *Node[V]) Value() *V {
	return elemValue[V](n.e)
}

// Destroy releases the held entry, leaving the Node empty. Destroying an
// empty Node is a no-op.
func (n *Node[V]) Destroy() {
	if n.e != nil {
		destroyElement(n.store, n.release, n.e)
		n.e = nil
	}
}

// Extract unlinks the entry stored under key from the Object without
// destroying it and transfers ownership to the returned Node. ok is false
// if the key is not present.
func (o *Object[V]) Extract(key string) (n Node[V], ok bool) {
	e, _ := o.find(key)
	if e == nil {
		return Node[V]{}, false
	}
	o.unlink(e)
	o.checkInvariants()
	return Node[V]{store: o.store, release: o.release, e: e}, true
}

// ExtractAt is Extract by position. The cursor must be valid and belong to
// this Object; the returned cursor addresses the next entry in insertion
// order.
func (o *Object[V]) ExtractAt(c Cursor[V]) (Node[V], Cursor[V]) {
	if invariants && (c.e == nil || c.o != o) {
		panic("omap: extract of invalid cursor")
	}
	next := o.unlink(c.e)
	o.checkInvariants()
	return Node[V]{store: o.store, release: o.release, e: c.e}, o.cursor(next)
}

// InsertNode links the entry held by n into the Object, appending it to the
// iteration order. The Node must have been extracted from an Object sharing
// this Object's Storage identity; violating this is a caller error
// (asserted under the invariants build tag, undefined otherwise). If the
// key is already present nothing is inserted and the Node retains ownership
// of its entry. On success the Node is left empty.
func (o *Object[V]) InsertNode(n *Node[V]) (v *V, inserted bool, err error) {
	if invariants {
		if n.e == nil {
			panic("omap: insert of empty node")
		}
		if n.store != o.store {
			panic("omap: node storage identity mismatch")
		}
	}
	e, h := o.find(n.e.keyString())
	if e != nil {
		return elemValue[V](e), false, nil
	}
	if err := o.link(nil, h, n.e); err != nil {
		return nil, false, err
	}
	v = elemValue[V](n.e)
	n.e = nil
	o.checkInvariants()
	return v, true, nil
}

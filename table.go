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

// table is the live structure backing one Object: a header followed in the
// same allocation by bucketCount bucket-chain head pointers. bucketCount is
// always a member of the prime sequence. head points at the first entry in
// insertion order (or at the end sentinel when empty), and end is the
// sentinel closing the order list. The sentinel's prev is maintained as the
// order-list tail so appends are O(1); its next is never read.
type table struct {
	count       int
	bucketCount int
	head        *element
	end         element
}

const tableHeaderSize = unsafe.Sizeof(table{})

func tableSize(bucketCount int) uintptr {
	return tableHeaderSize + uintptr(bucketCount)*unsafe.Sizeof((*element)(nil))
}

// newTable allocates an empty table with bucketCount buckets from store.
func newTable(store Storage, bucketCount int) (*table, error) {
	p, err := store.Allocate(tableSize(bucketCount), unsafe.Alignof(table{}))
	if err != nil {
		return nil, err
	}
	t := (*table)(p)
	t.count = 0
	t.bucketCount = bucketCount
	t.head = &t.end
	t.end.local = nil
	t.end.prev = &t.end
	t.end.next = nil
	for i := 0; i < bucketCount; i++ {
		*t.bucket(i) = nil
	}
	return t, nil
}

func freeTable(store Storage, t *table) {
	store.Deallocate(unsafe.Pointer(t), tableSize(t.bucketCount), unsafe.Alignof(table{}))
}

// bucket returns the address of bucket i's chain head.
func (t *table) bucket(i int) **element {
	return (**element)(unsafe.Add(unsafe.Pointer(t),
		tableHeaderSize+uintptr(i)*unsafe.Sizeof((*element)(nil))))
}

// endPtr returns the order list's end sentinel.
func (t *table) endPtr() *element {
	return &t.end
}

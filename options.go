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

// Option provides an interface to do work on an Object while it is being
// created.
type Option[V any] interface {
	apply(o *Object[V])
}

type storageOption[V any] struct {
	store Storage
}

func (op storageOption[V]) apply(o *Object[V]) {
	o.store = op.store
}

// WithStorage is an option to specify the Storage an Object allocates its
// entries and table from. Objects sharing a Storage (by identity) can
// exchange entries and tables without copying; see Take, Swap, and
// InsertNode.
func WithStorage[V any](store Storage) Option[V] {
	return storageOption[V]{store}
}

type maxLoadOption[V any] struct {
	maxLoad float64
}

func (op maxLoadOption[V]) apply(o *Object[V]) {
	o.maxLoad = op.maxLoad
}

// WithMaxLoadFactor is an option to specify the initial maximum load factor
// for an Object. The default is 1.0.
func WithMaxLoadFactor[V any](maxLoad float64) Option[V] {
	return maxLoadOption[V]{maxLoad}
}

type releaseOption[V any] struct {
	release func(*V)
}

func (op releaseOption[V]) apply(o *Object[V]) {
	o.release = op.release
}

// WithRelease is an option to register a hook invoked on each payload just
// before its entry's memory is returned to the Storage. Use it when
// payloads own resources that must be released when their entry is
// destroyed.
func WithRelease[V any](release func(*V)) Option[V] {
	return releaseOption[V]{release}
}

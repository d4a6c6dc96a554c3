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

// destroyGuard holds a freshly allocated entry that has not been linked
// into a table yet. Deferred rollback destroys the entry on every exit path
// unless commit disarms the guard first, so an insert that fails while
// rehashing leaves no orphaned allocation behind.
type destroyGuard[V any] struct {
	store   Storage
	release func(*V)
	e       *element
}

func (g *destroyGuard[V]) commit() {
	g.e = nil
}

func (g *destroyGuard[V]) rollback() {
	if g.e != nil {
		destroyElement(g.store, g.release, g.e)
		g.e = nil
	}
}

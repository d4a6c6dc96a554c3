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

// ErrKeyNotFound is returned by At for keys that are not present. The
// no-error lookups (Get, Contains, Count) report absence without it.
var ErrKeyNotFound = errors.New("omap: key not found")

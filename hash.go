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

// hashKey computes an FNV-1a hash over the raw bytes of key. The offset
// basis and prime are selected for the native word size at build time (see
// hashconst_32.go and hashconst_64.go), so the value is deterministic for a
// given build but not across builds with different word sizes. It is used
// only for bucket placement and is never persisted.
func hashKey(key string) uintptr {
	h := uintptr(fnvOffset)
	for i := 0; i < len(key); i++ {
		h ^= uintptr(key[i])
		h *= fnvPrime
	}
	return h
}

// constrain maps a hash value to a bucket index. The bucket count is always
// prime, which avoids pathological clustering when hash outputs have poor
// low-bit entropy.
func constrain(h uintptr, bucketCount int) int {
	return int(h % uintptr(bucketCount))
}

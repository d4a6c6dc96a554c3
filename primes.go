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

import "sort"

// Bucket counts are always drawn from bucketPrimes, a fixed ascending
// sequence in which each prime roughly doubles the previous one. Growing
// through the sequence multiplies capacity rather than adding a fixed
// increment, which is what makes repeated insertion amortized O(1). The
// table is extended on 64-bit builds (see primes_64.go).

// nextPrime returns the smallest bucket count in the sequence that is >= n,
// or the largest entry if n exceeds the sequence.
func nextPrime(n int) int {
	i := sort.SearchInts(bucketPrimes, n)
	if i == len(bucketPrimes) {
		return bucketPrimes[len(bucketPrimes)-1]
	}
	return bucketPrimes[i]
}

// isBucketPrime reports whether n is a member of the sequence.
func isBucketPrime(n int) bool {
	i := sort.SearchInts(bucketPrimes, n)
	return i < len(bucketPrimes) && bucketPrimes[i] == n
}

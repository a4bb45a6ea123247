// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import (
	"math/rand"
	"time"
)

// NonDeterministicSeed asks NewRandomGenerator to seed from the clock.
const NonDeterministicSeed int64 = -1

// RandomGenerator is the random generator for evaluations. It is not safe for
// concurrent use; evaluators draw from it only on the orchestrating goroutine.
type RandomGenerator struct {
	*rand.Rand
}

// NewRandomGenerator creates a RandomGenerator.
func NewRandomGenerator(seed int64) RandomGenerator {
	if seed == NonDeterministicSeed {
		seed = time.Now().UnixNano()
	}
	return RandomGenerator{rand.New(rand.NewSource(seed))}
}

// Bernoulli returns true with probability p.
func (rng RandomGenerator) Bernoulli(p float64) bool {
	if p >= 1 {
		return true
	}
	return rng.Float64() < p
}

// Shuffle shuffles a slice in place.
func Shuffle[T any](rng RandomGenerator, a []T) {
	rng.Rand.Shuffle(len(a), func(i, j int) {
		a[i], a[j] = a[j], a[i]
	})
}

// Copyright 2026 gorse Project Authors
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

package stat

import "math"

// RunningStat accumulates the count, mean and variance of a stream of values
// without storing them (Welford's method).
type RunningStat struct {
	count           uint64
	mean            float64
	sumSquaredDelta float64
}

// Add accumulates a new datum.
func (s *RunningStat) Add(x float64) {
	s.count++
	delta := x - s.mean
	s.mean += delta / float64(s.count)
	s.sumSquaredDelta += delta * (x - s.mean)
}

func (s *RunningStat) Count() uint64 {
	return s.count
}

// Mean returns NaN if nothing was added.
func (s *RunningStat) Mean() float64 {
	if s.count == 0 {
		return math.NaN()
	}
	return s.mean
}

// StdDev returns the sample standard deviation. It is zero for less than two data.
func (s *RunningStat) StdDev() float64 {
	if s.count < 2 {
		return 0
	}
	return math.Sqrt(s.sumSquaredDelta / float64(s.count-1))
}

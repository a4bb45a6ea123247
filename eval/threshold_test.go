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

package eval

import (
	"math"
	"testing"

	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

func TestAdaptiveThreshold(t *testing.T) {
	assert.Equal(t, math.Inf(-1), AdaptiveThreshold(nil))
	assert.Equal(t, math.Inf(-1), AdaptiveThreshold([]float64{5}))
	values := []float64{1, 2, 3, 4, 5}
	assert.InDelta(t, stat.Mean(values, nil)+stat.StdDev(values, nil), AdaptiveThreshold(values), 1e-9)
	assert.InDelta(t, 3+math.Sqrt(2.5), AdaptiveThreshold(values), 1e-9)
}

func TestThresholds(t *testing.T) {
	b := dataset.NewBuilder()
	b.Add(1, 1, 1)
	b.Add(1, 2, 2)
	b.Add(1, 3, 3)
	b.Add(2, 1, 4)
	data := b.Build()

	adaptive := NewAdaptiveThresholds(data)
	assert.InDelta(t, 3, adaptive.Of(1), 1e-9)
	assert.Equal(t, math.Inf(-1), adaptive.Of(2))
	assert.Equal(t, math.Inf(-1), adaptive.Of(100))
	assert.Equal(t, 3, adaptive.Len())
	// cached
	assert.InDelta(t, 3, adaptive.Of(1), 1e-9)
	assert.Equal(t, 3, adaptive.Len())
	adaptive.Close()
	assert.Zero(t, adaptive.Len())

	fixed := NewFixedThresholds(DefaultFixedThreshold)
	assert.Equal(t, 3.0, fixed.Of(1))
	assert.Equal(t, 3.0, fixed.Of(100))
	assert.Zero(t, fixed.Len())
	fixed.Close()
}

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

	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/jellydator/ttlcache/v3"
	"gonum.org/v1/gonum/stat"
)

// DefaultFixedThreshold is the midpoint of a 1-5 rating scale.
const DefaultFixedThreshold = 3.0

// AdaptiveThreshold is mean + sample standard deviation of the ratings of a user, or
// -Inf for less than two ratings.
func AdaptiveThreshold(values []float64) float64 {
	if len(values) < 2 {
		return math.Inf(-1)
	}
	mean, std := stat.MeanStdDev(values, nil)
	return mean + std
}

// Thresholds separates relevant ratings of users from irrelevant ones. Adaptive
// thresholds are computed on first use and cached for the lifetime of a run.
type Thresholds struct {
	adaptive bool
	fixed    float64
	data     *dataset.DataModel
	cache    *ttlcache.Cache[int64, float64]
}

// NewAdaptiveThresholds computes per user thresholds from data.
func NewAdaptiveThresholds(data *dataset.DataModel) *Thresholds {
	return &Thresholds{
		adaptive: true,
		data:     data,
		cache:    ttlcache.New[int64, float64](),
	}
}

// NewFixedThresholds uses the same threshold for every user.
func NewFixedThresholds(threshold float64) *Thresholds {
	return &Thresholds{fixed: threshold}
}

// Of returns the threshold of a user. Users unknown to the data have -Inf.
func (t *Thresholds) Of(userId int64) float64 {
	if !t.adaptive {
		return t.fixed
	}
	if item := t.cache.Get(userId); item != nil {
		return item.Value()
	}
	var threshold float64
	if prefs, err := t.data.PreferencesOfUser(userId); err != nil {
		threshold = math.Inf(-1)
	} else {
		threshold = AdaptiveThreshold(prefs.Values())
	}
	t.cache.Set(userId, threshold, ttlcache.NoTTL)
	return threshold
}

// Len returns the number of cached thresholds.
func (t *Thresholds) Len() int {
	if t.cache == nil {
		return 0
	}
	return t.cache.Len()
}

// Close discards cached thresholds.
func (t *Thresholds) Close() {
	if t.cache != nil {
		t.cache.DeleteAll()
	}
}

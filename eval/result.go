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
	"maps"
	"math"
	"slices"

	"github.com/juju/errors"
)

const (
	RMSE      = "RMSE"
	MAE       = "MAE"
	Accuracy  = "Accuracy"
	Precision = "Precision"
	Recall    = "Recall"
	Coverage  = "Coverage"
	Fallout   = "Fallout"
	NDCG      = "NDCG"
	Reach     = "Reach"
	F1        = "F1"
)

// Metric is the mean and standard deviation of a metric across runs.
type Metric struct {
	Value  float64
	StdDev float64
}

// MetricsResult maps metric names to their values.
type MetricsResult map[string]Metric

// Names returns metric names in ascending order.
func (r MetricsResult) Names() []string {
	return slices.Sorted(maps.Keys(r))
}

// Values returns the mean of every metric.
func (r MetricsResult) Values() map[string]float64 {
	values := make(map[string]float64, len(r))
	for name, metric := range r {
		values[name] = metric.Value
	}
	return values
}

// IRStatistics holds ranking quality metrics. Every value is in [0, 1] or NaN.
type IRStatistics struct {
	precision float64
	recall    float64
	fallout   float64
	ndcg      float64
	reach     float64
}

// NewIRStatistics validates ranking metrics. Values out of [0, 1] are rejected.
func NewIRStatistics(precision, recall, fallout, ndcg, reach float64) (*IRStatistics, error) {
	for _, metric := range []struct {
		name  string
		value float64
	}{
		{Precision, precision},
		{Recall, recall},
		{Fallout, fallout},
		{NDCG, ndcg},
		{Reach, reach},
	} {
		if metric.value < 0 || metric.value > 1 {
			return nil, errors.NotValidf("%s %v", metric.name, metric.value)
		}
	}
	return &IRStatistics{
		precision: precision,
		recall:    recall,
		fallout:   fallout,
		ndcg:      ndcg,
		reach:     reach,
	}, nil
}

func (s *IRStatistics) Precision() float64 {
	return s.precision
}

func (s *IRStatistics) Recall() float64 {
	return s.recall
}

func (s *IRStatistics) Fallout() float64 {
	return s.fallout
}

func (s *IRStatistics) NDCG() float64 {
	return s.ndcg
}

func (s *IRStatistics) Reach() float64 {
	return s.reach
}

// F1Measure is the harmonic mean of precision and recall.
func (s *IRStatistics) F1Measure() float64 {
	return s.FNMeasure(1)
}

// FNMeasure weights recall n times as much as precision. It is NaN if both are zero.
func (s *IRStatistics) FNMeasure(n float64) float64 {
	sum := n*n*s.precision + s.recall
	if sum == 0 {
		return math.NaN()
	}
	return (1 + n*n) * s.precision * s.recall / sum
}

// Metrics converts the statistics to a MetricsResult without deviations.
func (s *IRStatistics) Metrics() MetricsResult {
	return MetricsResult{
		Precision: {Value: s.precision},
		Recall:    {Value: s.recall},
		Fallout:   {Value: s.fallout},
		NDCG:      {Value: s.ndcg},
		Reach:     {Value: s.reach},
		F1:        {Value: s.F1Measure()},
	}
}

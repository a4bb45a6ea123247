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

package similarity

import (
	"context"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/gorse-io/gorse-eval/base/log"
	"github.com/gorse-io/gorse-eval/common/parallel"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WeightTolerance is the allowed deviation of the sum of weights from one.
const WeightTolerance = 1e-4

// ValidateWeights checks that weights sum to one and that every criterion is known.
func ValidateWeights(weights map[string]float64, known func(name string) bool) error {
	if len(weights) == 0 {
		return errors.NotValidf("empty similarity weights")
	}
	sum := 0.0
	for _, name := range slices.Sorted(maps.Keys(weights)) {
		if known != nil && !known(name) {
			return errors.NotFoundf("similarity criterion %s", name)
		}
		weight := weights[name]
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			return errors.NotValidf("weight %v of %s", weight, name)
		}
		sum += weight
	}
	if math.Abs(sum-1) > WeightTolerance {
		return errors.NotValidf("similarity weights sum to %v", sum)
	}
	return nil
}

type component struct {
	name       string
	weight     float64
	similarity Similarity
}

// Hybrid is a precomputed weighted combination of criteria. Only the upper triangle
// (row < column) is stored. It is immutable once built.
type Hybrid struct {
	ids  []int64
	rows map[int64]map[int64]float64
}

// BuildHybrid computes the weighted similarity of every pair of entities in the
// universe of the source. One task per row is submitted to the runner.
func BuildHybrid(ctx context.Context, source Source, weights map[string]float64, registry *Registry, runner *parallel.Runner) (*Hybrid, error) {
	attributeNames := slices.Collect(maps.Keys(source.Attributes))
	if err := ValidateWeights(weights, func(name string) bool {
		return registry.Has(name, attributeNames...)
	}); err != nil {
		return nil, errors.Trace(err)
	}
	components := make([]component, 0, len(weights))
	for _, name := range slices.Sorted(maps.Keys(weights)) {
		sim, err := registry.New(name, source)
		if err != nil {
			return nil, errors.Trace(err)
		}
		components = append(components, component{name: name, weight: weights[name], similarity: sim})
	}

	ctx, span := otel.Tracer("similarity").Start(ctx, "BuildHybrid")
	defer span.End()
	start := time.Now()
	ids := source.IDs()
	span.SetAttributes(attribute.Int("n_entities", len(ids)))
	rows := make([]map[int64]float64, len(ids))
	tasks := make([]parallel.Task, len(ids))
	for i := range ids {
		tasks[i] = func() error {
			row := make(map[int64]float64, len(ids)-i-1)
			for j := i + 1; j < len(ids); j++ {
				value, err := combine(components, ids[i], ids[j])
				if err != nil {
					return errors.Trace(err)
				}
				row[ids[j]] = value
			}
			rows[i] = row
			return nil
		}
	}
	if err := runner.Run(ctx, tasks); err != nil {
		span.RecordError(err)
		return nil, errors.Trace(err)
	}

	h := &Hybrid{ids: ids, rows: make(map[int64]map[int64]float64, len(ids))}
	for i, id := range ids {
		h.rows[id] = rows[i]
	}
	HybridPairs.WithLabelValues(string(source.Kind)).Set(float64(h.NumPairs()))
	HybridSeconds.WithLabelValues(string(source.Kind)).Set(time.Since(start).Seconds())
	log.Logger().Info("complete building hybrid similarity",
		zap.String("kind", string(source.Kind)),
		zap.Strings("criteria", lo.Map(components, func(c component, _ int) string { return c.name })),
		zap.Int("n_entities", len(ids)),
		zap.Int("n_pairs", h.NumPairs()),
		zap.Duration("elapsed", time.Since(start)))
	return h, nil
}

// combine sums weighted component similarities. Undefined components contribute zero.
func combine(components []component, a, b int64) (float64, error) {
	sum := 0.0
	for _, c := range components {
		value, err := c.similarity.Similarity(a, b)
		if err != nil {
			return 0, errors.Annotatef(err, "similarity %s of (%d, %d)", c.name, a, b)
		}
		if math.IsNaN(value) {
			continue
		}
		sum += c.weight * value
	}
	return lo.Clamp(sum, -1, 1), nil
}

// Similarity returns the stored similarity of a pair. It is 1 for identical ids and
// a NotFound error for pairs outside the universe.
func (h *Hybrid) Similarity(a, b int64) (float64, error) {
	if a == b {
		return 1, nil
	}
	if a > b {
		a, b = b, a
	}
	row, ok := h.rows[a]
	if !ok {
		return 0, errors.NotFoundf("similarity of (%d, %d)", a, b)
	}
	value, ok := row[b]
	if !ok {
		return 0, errors.NotFoundf("similarity of (%d, %d)", a, b)
	}
	return value, nil
}

// IDs returns the universe in ascending order.
func (h *Hybrid) IDs() []int64 {
	return h.ids
}

func (h *Hybrid) NumPairs() int {
	n := 0
	for _, row := range h.rows {
		n += len(row)
	}
	return n
}

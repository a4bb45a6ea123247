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
	"cmp"
	"context"
	"math"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/gorse-io/gorse-eval/base"
	"github.com/gorse-io/gorse-eval/base/log"
	"github.com/gorse-io/gorse-eval/common/parallel"
	"github.com/gorse-io/gorse-eval/common/stat"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/gorse-io/gorse-eval/model"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// RelevantItemSelector picks the held-out relevant items of a user.
type RelevantItemSelector interface {
	SelectRelevant(prefs dataset.Preferences, at int, threshold float64) mapset.Set[int64]
}

// byValueDesc sorts a copy of prefs by decreasing rating, keeping storage order for ties.
func byValueDesc(prefs dataset.Preferences) dataset.Preferences {
	sorted := slices.Clone(prefs)
	slices.SortStableFunc(sorted, func(a, b dataset.Preference) int {
		return cmp.Compare(b.Value, a.Value)
	})
	return sorted
}

// ThresholdSelector selects up to `at` highest rated items rated at least the threshold.
type ThresholdSelector struct{}

func (ThresholdSelector) SelectRelevant(prefs dataset.Preferences, at int, threshold float64) mapset.Set[int64] {
	relevant := mapset.NewThreadUnsafeSet[int64]()
	for _, pref := range byValueDesc(prefs) {
		if relevant.Cardinality() >= at {
			break
		}
		if float64(pref.Value) >= threshold {
			relevant.Add(pref.ItemId)
		}
	}
	return relevant
}

// RankPositionSelector selects the items at fixed 0-based positions of the ratings of
// a user sorted by decreasing value. Positions past the end are ignored.
type RankPositionSelector struct {
	Positions []int
}

func (s RankPositionSelector) SelectRelevant(prefs dataset.Preferences, _ int, _ float64) mapset.Set[int64] {
	relevant := mapset.NewThreadUnsafeSet[int64]()
	sorted := byValueDesc(prefs)
	for _, position := range s.Positions {
		if position >= 0 && position < len(sorted) {
			relevant.Add(sorted[position].ItemId)
		}
	}
	return relevant
}

type IRStatsConfig struct {
	// At is the length of recommendation lists.
	At int
	// RelevanceThreshold is NaN for per user adaptive thresholds.
	RelevanceThreshold   float64
	EvaluationPercentage float64
	Seed                 int64
	// Selector defaults to ThresholdSelector.
	Selector RelevantItemSelector
	// Rescorer is optional.
	Rescorer model.Rescorer
}

func (c *IRStatsConfig) Validate() error {
	if c.At < 1 {
		return errors.NotValidf("at %d", c.At)
	}
	if !(c.EvaluationPercentage > 0 && c.EvaluationPercentage <= 1) {
		return errors.NotValidf("evaluation percentage %v", c.EvaluationPercentage)
	}
	return nil
}

// IRStatsEvaluator measures the quality of top-N recommendation lists by holding out
// the relevant items of each user in turn.
type IRStatsEvaluator struct {
	config IRStatsConfig
	runner *parallel.Runner
}

func NewIRStatsEvaluator(config IRStatsConfig, runner *parallel.Runner) (*IRStatsEvaluator, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Selector == nil {
		config.Selector = ThresholdSelector{}
	}
	return &IRStatsEvaluator{config: config, runner: runner}, nil
}

// userIR is the outcome of one user, merged after all tasks finish.
type userIR struct {
	considered       bool
	numRecommended   int
	precision        float64
	recall           float64
	fallout          float64
	ndcg             float64
	hasFallout       bool
	hasIdealizedGain bool
}

func (e *IRStatsEvaluator) Evaluate(ctx context.Context, data *dataset.DataModel, builder model.Builder) (*IRStatistics, error) {
	runId := uuid.New().String()
	logger := log.RunLogger(runId)
	ctx, span := otel.Tracer("eval").Start(ctx, "IRStatsEvaluator.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runId), attribute.Int("at", e.config.At))

	var thresholds *Thresholds
	if math.IsNaN(e.config.RelevanceThreshold) {
		thresholds = NewAdaptiveThresholds(data)
	} else {
		thresholds = NewFixedThresholds(e.config.RelevanceThreshold)
	}
	defer thresholds.Close()

	start := time.Now()
	rng := base.NewRandomGenerator(e.config.Seed)
	users := make([]int64, 0, data.NumUsers())
	for _, userId := range data.UserIDs() {
		if rng.Bernoulli(e.config.EvaluationPercentage) {
			users = append(users, userId)
		}
	}
	logger.Info("start ranking evaluation",
		zap.Int("at", e.config.At),
		zap.Int("n_users", len(users)))

	numItems := data.NumItems()
	var skipped atomic.Int64
	results := make([]userIR, len(users))
	tasks := make([]parallel.Task, len(users))
	for i, userId := range users {
		tasks[i] = func() error {
			prefs, err := data.PreferencesOfUser(userId)
			if err != nil {
				return errors.Trace(err)
			}
			relevant := e.config.Selector.SelectRelevant(prefs, e.config.At, thresholds.Of(userId))
			numRelevant := relevant.Cardinality()
			if numRelevant == 0 {
				logger.Debug("skip user without relevant items", log.UserId(userId))
				skipped.Inc()
				return nil
			}
			train := data.Without(userId, relevant)
			remaining := 0
			if trainPrefs, err := train.PreferencesOfUser(userId); err == nil {
				remaining = len(trainPrefs)
			}
			if remaining == 0 || numRelevant+remaining < 2*e.config.At {
				logger.Debug("skip user with too few ratings", log.UserId(userId),
					zap.Int("n_relevant", numRelevant), zap.Int("n_remaining", remaining))
				skipped.Inc()
				return nil
			}
			recommender, err := builder.Build(ctx, train)
			if err != nil {
				return errors.Annotatef(err, "build recommender without relevant items of user %d", userId)
			}
			items, err := recommender.Recommend(userId, e.config.At, e.config.Rescorer)
			if err != nil {
				return errors.Annotatef(err, "recommend items to user %d", userId)
			}
			results[i] = rankingMetrics(items, relevant, numRelevant+remaining, numItems)
			return nil
		}
	}
	if err := e.runner.Run(ctx, tasks); err != nil {
		span.RecordError(err)
		return nil, errors.Trace(err)
	}

	var precision, recall, fallout, ndcg stat.RunningStat
	var considered, withRecommendations int
	for _, result := range results {
		if !result.considered {
			continue
		}
		considered++
		if result.numRecommended > 0 {
			withRecommendations++
			precision.Add(result.precision)
		}
		recall.Add(result.recall)
		if result.hasFallout {
			fallout.Add(result.fallout)
		}
		if result.hasIdealizedGain {
			ndcg.Add(result.ndcg)
		}
	}
	reach := math.NaN()
	if considered > 0 {
		reach = float64(withRecommendations) / float64(considered)
	}
	stats, err := NewIRStatistics(precision.Mean(), recall.Mean(), fallout.Mean(), ndcg.Mean(), reach)
	if err != nil {
		return nil, errors.Trace(err)
	}
	exportIRStatistics(stats, skipped.Load())
	fields := []zap.Field{
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("n_considered_users", considered),
		zap.Int64("n_skipped_users", skipped.Load()),
	}
	logger.Info("complete ranking evaluation", append(fields, log.Metrics(stats.Metrics().Values())...)...)
	return stats, nil
}

// rankingMetrics scores one recommendation list against the relevant items of a user
// having numPrefs ratings in total, out of numItems items.
func rankingMetrics(items []model.RecommendedItem, relevant mapset.Set[int64], numPrefs, numItems int) userIR {
	numRelevant := relevant.Cardinality()
	result := userIR{considered: true, numRecommended: len(items)}
	intersection := 0
	var cumulativeGain, idealizedGain float64
	for i, item := range items {
		discount := 1 / math.Log2(float64(i)+2)
		if relevant.Contains(item.ItemId) {
			intersection++
			cumulativeGain += discount
		}
		if i < numRelevant {
			idealizedGain += discount
		}
	}
	if len(items) > 0 {
		result.precision = float64(intersection) / float64(len(items))
	}
	result.recall = float64(intersection) / float64(numRelevant)
	if numRelevant < numPrefs && numItems > numRelevant {
		result.hasFallout = true
		result.fallout = float64(len(items)-intersection) / float64(numItems-numRelevant)
	}
	if idealizedGain > 0 {
		result.hasIdealizedGain = true
		result.ndcg = cumulativeGain / idealizedGain
	}
	return result
}

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
	"context"
	"maps"
	"math"
	"slices"
	"time"

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

type DifferenceConfig struct {
	Mode SplitMode
	// Folds is the number of folds for k-fold cross validation. Zero selects hold-out.
	Folds         int
	TrainFraction float64
	// EvaluationPercentage is the probability of a user taking part in a run.
	EvaluationPercentage float64
	// Seeds of repeated runs. NonDeterministicSeed seeds from the clock.
	Seeds []int64

	EnableMAE            bool
	EnableRMSE           bool
	EnableClassification bool
	AdaptiveThreshold    bool
	FixedThreshold       float64
}

func (c *DifferenceConfig) Validate() error {
	if c.Mode != RandomSplit && c.Mode != StratifiedSplit {
		return errors.NotValidf("split mode %s", c.Mode)
	}
	if c.Folds < 0 || c.Folds == 1 {
		return errors.NotValidf("%d folds", c.Folds)
	}
	if c.TrainFraction < 0 || c.TrainFraction > 1 || math.IsNaN(c.TrainFraction) {
		return errors.NotValidf("train fraction %v", c.TrainFraction)
	}
	if !(c.EvaluationPercentage > 0 && c.EvaluationPercentage <= 1) {
		return errors.NotValidf("evaluation percentage %v", c.EvaluationPercentage)
	}
	if !c.EnableMAE && !c.EnableRMSE && !c.EnableClassification {
		return errors.NotValidf("no difference metric enabled")
	}
	return nil
}

// DifferenceEvaluator measures how accurately a recommender estimates held-out
// ratings.
type DifferenceEvaluator struct {
	config DifferenceConfig
	runner *parallel.Runner
}

func NewDifferenceEvaluator(config DifferenceConfig, runner *parallel.Runner) (*DifferenceEvaluator, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if len(config.Seeds) == 0 {
		config.Seeds = []int64{base.NonDeterministicSeed}
	}
	return &DifferenceEvaluator{config: config, runner: runner}, nil
}

// fold is a training set and the held-out preferences of each test user.
type fold struct {
	train *dataset.DataModel
	test  map[int64]dataset.Preferences
}

// Evaluate runs every seed and fold sequentially and reports the mean and standard
// deviation of each metric across runs.
func (e *DifferenceEvaluator) Evaluate(ctx context.Context, data *dataset.DataModel, builder model.Builder) (MetricsResult, error) {
	runId := uuid.New().String()
	logger := log.RunLogger(runId)
	ctx, span := otel.Tracer("eval").Start(ctx, "DifferenceEvaluator.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runId))

	var ranking []int64
	if e.config.Mode == StratifiedSplit {
		ranking = dataset.PopularityRanking(data)
	}
	splitter, err := NewSplitter(e.config.Mode, ranking)
	if err != nil {
		return nil, errors.Trace(err)
	}

	start := time.Now()
	logger.Info("start difference evaluation",
		zap.String("mode", string(e.config.Mode)),
		zap.Int("n_folds", e.config.Folds),
		zap.Int64s("seeds", e.config.Seeds),
		zap.Int("n_users", data.NumUsers()))
	runs := make(map[string]*stat.RunningStat)
	var skipped int64
	for _, seed := range e.config.Seeds {
		rng := base.NewRandomGenerator(seed)
		folds, numSkipped := e.split(data, splitter, rng)
		skipped += numSkipped
		for i, f := range folds {
			metrics, err := e.evaluateFold(ctx, f, builder, log.FoldLogger(logger, seed, i))
			if err != nil {
				span.RecordError(err)
				return nil, errors.Annotatef(err, "evaluate fold %d with seed %d", i, seed)
			}
			for name, value := range metrics {
				if _, ok := runs[name]; !ok {
					runs[name] = new(stat.RunningStat)
				}
				runs[name].Add(value)
			}
		}
	}

	result := make(MetricsResult, len(runs))
	for name, run := range runs {
		result[name] = Metric{Value: run.Mean(), StdDev: run.StdDev()}
	}
	exportMetrics(result, skipped)
	fields := []zap.Field{zap.Duration("elapsed", time.Since(start)), zap.Int64("n_skipped_users", skipped)}
	fields = append(fields, log.Metrics(result.Values())...)
	logger.Info("complete difference evaluation", fields...)
	return result, nil
}

// split samples users and partitions their preferences. Users left out by sampling
// are absent from both train and test sets.
func (e *DifferenceEvaluator) split(data *dataset.DataModel, splitter *Splitter, rng base.RandomGenerator) ([]fold, int64) {
	var skipped int64
	if e.config.Folds >= 2 {
		trainOnly := make(map[int64]dataset.Preferences)
		buckets := make([]map[int64]dataset.Preferences, e.config.Folds)
		for i := range buckets {
			buckets[i] = make(map[int64]dataset.Preferences)
		}
		for _, userId := range data.UserIDs() {
			if !rng.Bernoulli(e.config.EvaluationPercentage) {
				skipped++
				continue
			}
			prefs, _ := data.PreferencesOfUser(userId)
			parts := splitter.KFold(prefs, e.config.Folds, rng)
			if parts == nil {
				trainOnly[userId] = prefs
				continue
			}
			for i, part := range parts {
				if len(part) > 0 {
					buckets[i][userId] = part
				}
			}
		}
		folds := make([]fold, e.config.Folds)
		for i := range folds {
			train := maps.Clone(trainOnly)
			for j, bucket := range buckets {
				if j == i {
					continue
				}
				for _, userId := range slices.Sorted(maps.Keys(bucket)) {
					train[userId] = append(slices.Clip(train[userId]), bucket[userId]...)
				}
			}
			folds[i] = fold{train: dataset.NewDataModel(train), test: buckets[i]}
		}
		return folds, skipped
	}

	train := make(map[int64]dataset.Preferences)
	test := make(map[int64]dataset.Preferences)
	for _, userId := range data.UserIDs() {
		if !rng.Bernoulli(e.config.EvaluationPercentage) {
			skipped++
			continue
		}
		prefs, _ := data.PreferencesOfUser(userId)
		trainPrefs, testPrefs := splitter.HoldOut(prefs, e.config.TrainFraction, rng)
		if len(trainPrefs) > 0 {
			train[userId] = trainPrefs
		}
		if len(testPrefs) > 0 {
			test[userId] = testPrefs
		}
	}
	return []fold{{train: dataset.NewDataModel(train), test: test}}, skipped
}

// userDifference is the outcome of one test user, merged after all tasks finish so
// that results do not depend on completion order.
type userDifference struct {
	absDiffs []float64
	sqDiffs  []float64
}

func (e *DifferenceEvaluator) evaluateFold(ctx context.Context, f fold, builder model.Builder, logger *zap.Logger) (map[string]float64, error) {
	recommender, err := builder.Build(ctx, f.train)
	if err != nil {
		return nil, errors.Annotate(err, "build recommender")
	}
	var thresholds *Thresholds
	if e.config.AdaptiveThreshold {
		thresholds = NewAdaptiveThresholds(f.train)
	} else {
		thresholds = NewFixedThresholds(e.config.FixedThreshold)
	}
	defer thresholds.Close()

	var (
		truePositive, falsePositive atomic.Int64
		falseNegative, trueNegative atomic.Int64
		estimated, noEstimate       atomic.Int64
	)
	users := slices.Sorted(maps.Keys(f.test))
	results := make([]userDifference, len(users))
	tasks := make([]parallel.Task, len(users))
	for i, userId := range users {
		tasks[i] = func() error {
			threshold := thresholds.Of(userId)
			for _, pref := range f.test[userId] {
				est, err := recommender.Estimate(userId, pref.ItemId)
				if err != nil {
					return errors.Annotatef(err, "estimate preference of user %d for item %d", userId, pref.ItemId)
				}
				if !est.Ok() {
					noEstimate.Inc()
					continue
				}
				estimated.Inc()
				diff := float64(pref.Value - est.Value)
				if e.config.EnableMAE {
					results[i].absDiffs = append(results[i].absDiffs, math.Abs(diff))
				}
				if e.config.EnableRMSE {
					results[i].sqDiffs = append(results[i].sqDiffs, diff*diff)
				}
				if e.config.EnableClassification {
					predicted := float64(est.Value) >= threshold
					actual := float64(pref.Value) >= threshold
					switch {
					case predicted && actual:
						truePositive.Inc()
					case predicted && !actual:
						falsePositive.Inc()
					case !predicted && actual:
						falseNegative.Inc()
					default:
						trueNegative.Inc()
					}
				}
			}
			return nil
		}
	}
	if err = e.runner.Run(ctx, tasks); err != nil {
		return nil, errors.Trace(err)
	}

	var mae, rmse stat.RunningStat
	for _, result := range results {
		for _, d := range result.absDiffs {
			mae.Add(d)
		}
		for _, d := range result.sqDiffs {
			rmse.Add(d)
		}
	}
	metrics := map[string]float64{
		Coverage: ratio(estimated.Load(), estimated.Load()+noEstimate.Load()),
	}
	if e.config.EnableMAE {
		metrics[MAE] = mae.Mean()
	}
	if e.config.EnableRMSE {
		metrics[RMSE] = math.Sqrt(rmse.Mean())
	}
	if e.config.EnableClassification {
		tp, fp := truePositive.Load(), falsePositive.Load()
		fn, tn := falseNegative.Load(), trueNegative.Load()
		metrics[Accuracy] = ratio(tp+tn, tp+fp+fn+tn)
		metrics[Precision] = ratio(tp, tp+fp)
		metrics[Recall] = ratio(tp, tp+fn)
	}
	fields := []zap.Field{
		zap.Int("n_train_users", f.train.NumUsers()),
		zap.Int("n_test_users", len(users)),
		zap.Int64("n_estimated", estimated.Load()),
		zap.Int64("n_no_estimate", noEstimate.Load()),
		zap.Int("n_cached_thresholds", thresholds.Len()),
	}
	logger.Debug("complete evaluating fold", append(fields, log.Metrics(metrics)...)...)
	return metrics, nil
}

// ratio is NaN for a zero denominator.
func ratio(numerator, denominator int64) float64 {
	if denominator == 0 {
		return math.NaN()
	}
	return float64(numerator) / float64(denominator)
}

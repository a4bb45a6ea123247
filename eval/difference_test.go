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
	"math"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/gorse-eval/base"
	"github.com/gorse-io/gorse-eval/common/parallel"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/gorse-io/gorse-eval/model"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

func newDifferenceConfig() DifferenceConfig {
	return DifferenceConfig{
		Mode:                 RandomSplit,
		TrainFraction:        0.7,
		EvaluationPercentage: 1,
		Seeds:                []int64{42},
		EnableMAE:            true,
		EnableRMSE:           true,
		FixedThreshold:       DefaultFixedThreshold,
	}
}

func TestDifferenceConfigValidate(t *testing.T) {
	for name, mutate := range map[string]func(*DifferenceConfig){
		"mode":           func(c *DifferenceConfig) { c.Mode = "unknown" },
		"one fold":       func(c *DifferenceConfig) { c.Folds = 1 },
		"negative folds": func(c *DifferenceConfig) { c.Folds = -2 },
		"train fraction": func(c *DifferenceConfig) { c.TrainFraction = 1.5 },
		"nan fraction":   func(c *DifferenceConfig) { c.TrainFraction = math.NaN() },
		"no users":       func(c *DifferenceConfig) { c.EvaluationPercentage = 0 },
		"too many users": func(c *DifferenceConfig) { c.EvaluationPercentage = 1.1 },
		"no metrics": func(c *DifferenceConfig) {
			c.EnableMAE, c.EnableRMSE, c.EnableClassification = false, false, false
		},
	} {
		config := newDifferenceConfig()
		mutate(&config)
		_, err := NewDifferenceEvaluator(config, parallel.NewRunner())
		assert.True(t, errors.Is(err, errors.NotValid), name)
	}
	config := newDifferenceConfig()
	config.Seeds = nil
	e, err := NewDifferenceEvaluator(config, parallel.NewRunner())
	assert.NoError(t, err)
	assert.Equal(t, []int64{base.NonDeterministicSeed}, e.config.Seeds)
}

type DifferenceTestSuite struct {
	suite.Suite
	runner *parallel.Runner
}

func (suite *DifferenceTestSuite) SetupSuite() {
	suite.runner = parallel.NewRunner(parallel.WithJobs(4))
}

func (suite *DifferenceTestSuite) newEvaluator(config DifferenceConfig) *DifferenceEvaluator {
	e, err := NewDifferenceEvaluator(config, suite.runner)
	suite.NoError(err)
	return e
}

func (suite *DifferenceTestSuite) TestSameSeed() {
	data := newGridDataModel(10, 10)
	e := suite.newEvaluator(newDifferenceConfig())
	splitter, err := NewSplitter(RandomSplit, nil)
	suite.NoError(err)

	folds1, _ := e.split(data, splitter, base.NewRandomGenerator(42))
	folds2, _ := e.split(data, splitter, base.NewRandomGenerator(42))
	suite.Equal(folds1, folds2)
	suite.Len(folds1, 1)
	suite.Equal(10, folds1[0].train.NumUsers())
	suite.Len(folds1[0].test, 10)
	for userId, test := range folds1[0].test {
		suite.Len(test, 3)
		train, err := folds1[0].train.PreferencesOfUser(userId)
		suite.NoError(err)
		suite.Len(train, 7)
	}

	result1, err := e.Evaluate(context.Background(), data, model.ItemAverageBuilder())
	suite.NoError(err)
	result2, err := e.Evaluate(context.Background(), data, model.ItemAverageBuilder())
	suite.NoError(err)
	suite.Equal(result1, result2)
	suite.Equal([]string{Coverage, MAE, RMSE}, result1.Names())
	suite.GreaterOrEqual(result1[RMSE].Value, result1[MAE].Value)
	suite.Zero(result1[MAE].StdDev)
}

func (suite *DifferenceTestSuite) TestExactRecommender() {
	data := newGridDataModel(10, 10)
	config := newDifferenceConfig()
	config.EnableClassification = true
	config.Seeds = []int64{1, 2, 3}
	result, err := suite.newEvaluator(config).Evaluate(context.Background(), data, oracleBuilder(data))
	suite.NoError(err)
	suite.Equal(Metric{Value: 0}, result[MAE])
	suite.Equal(Metric{Value: 0}, result[RMSE])
	suite.Equal(Metric{Value: 1}, result[Coverage])
	suite.Equal(Metric{Value: 1}, result[Accuracy])
	suite.Equal(Metric{Value: 1}, result[Precision])
	suite.Equal(Metric{Value: 1}, result[Recall])
	suite.Zero(testutil.ToFloat64(SkippedUsersTotal.WithLabelValues("difference")))
	suite.Equal(0.0, testutil.ToFloat64(DifferenceMetricVec.WithLabelValues(MAE, "mean")))
}

func (suite *DifferenceTestSuite) TestKFold() {
	data := newGridDataModel(8, 12)
	config := newDifferenceConfig()
	config.Folds = 4
	e := suite.newEvaluator(config)
	splitter, err := NewSplitter(RandomSplit, nil)
	suite.NoError(err)
	folds, skipped := e.split(data, splitter, base.NewRandomGenerator(7))
	suite.Zero(skipped)
	suite.Len(folds, 4)
	for _, userId := range data.UserIDs() {
		prefs, err := data.PreferencesOfUser(userId)
		suite.NoError(err)
		tested := mapset.NewSet[int64]()
		for _, f := range folds {
			test := f.test[userId]
			suite.Len(test, 3)
			for _, pref := range test {
				suite.True(tested.Add(pref.ItemId))
				_, inTrain := f.train.PreferenceValue(userId, pref.ItemId)
				suite.False(inTrain)
			}
			train, err := f.train.PreferencesOfUser(userId)
			suite.NoError(err)
			suite.Len(train, 9)
		}
		suite.True(mapset.NewSet(prefs.ItemIDs()...).Equal(tested))
	}

	result, err := e.Evaluate(context.Background(), data, oracleBuilder(data))
	suite.NoError(err)
	suite.Equal(Metric{Value: 0}, result[MAE])
	suite.Equal(Metric{Value: 1}, result[Coverage])
}

func (suite *DifferenceTestSuite) TestStratified() {
	data := newGridDataModel(6, 10)
	config := newDifferenceConfig()
	config.Mode = StratifiedSplit
	config.TrainFraction = 0.8
	config.Folds = 0
	result, err := suite.newEvaluator(config).Evaluate(context.Background(), data, oracleBuilder(data))
	suite.NoError(err)
	suite.Equal(Metric{Value: 0}, result[MAE])
}

func (suite *DifferenceTestSuite) TestNoEstimate() {
	data := newGridDataModel(5, 5)
	result, err := suite.newEvaluator(newDifferenceConfig()).Evaluate(context.Background(), data, builderOf(ignorant{}))
	suite.NoError(err)
	suite.Equal(0.0, result[Coverage].Value)
	suite.True(math.IsNaN(result[MAE].Value))
	suite.True(math.IsNaN(result[RMSE].Value))
}

func (suite *DifferenceTestSuite) TestUsersWithOneRating() {
	data := newGridDataModel(3, 5)
	prefs, err := data.PreferencesOfUser(1)
	suite.NoError(err)
	// user 1 keeps only one rating and never contributes test material
	single := data.Without(1, mapset.NewSet(prefs.ItemIDs()[1:]...))
	config := newDifferenceConfig()
	config.Folds = 2
	e := suite.newEvaluator(config)
	splitter, err := NewSplitter(RandomSplit, nil)
	suite.NoError(err)
	folds, _ := e.split(single, splitter, base.NewRandomGenerator(0))
	for _, f := range folds {
		suite.NotContains(f.test, int64(1))
		suite.True(f.train.HasUser(1))
	}
}

func (suite *DifferenceTestSuite) TestSampling() {
	data := newGridDataModel(20, 5)
	config := newDifferenceConfig()
	config.EvaluationPercentage = 0.5
	e := suite.newEvaluator(config)
	splitter, err := NewSplitter(RandomSplit, nil)
	suite.NoError(err)
	folds, skipped := e.split(data, splitter, base.NewRandomGenerator(3))
	suite.Positive(skipped)
	suite.Equal(20-int(skipped), folds[0].train.NumUsers())
	suite.Len(folds[0].test, 20-int(skipped))
}

// newClassificationFold holds out five ratings of user 1 and one rating of user 2.
// User 1 trains on 1, 3 and 5, user 2 on a single rating.
func newClassificationFold() (fold, table) {
	b := dataset.NewBuilder()
	b.Add(1, 1, 1)
	b.Add(1, 2, 3)
	b.Add(1, 3, 5)
	b.Add(2, 1, 2)
	f := fold{
		train: b.Build(),
		test: map[int64]dataset.Preferences{
			1: {
				{UserId: 1, ItemId: 3, Value: 4},
				{UserId: 1, ItemId: 4, Value: 2},
				{UserId: 1, ItemId: 5, Value: 5},
				{UserId: 1, ItemId: 6, Value: 1},
				{UserId: 1, ItemId: 7, Value: 4},
			},
			2: {{UserId: 2, ItemId: 2, Value: 1}},
		},
	}
	estimates := table{
		{1, 3}: 5, {1, 4}: 3, {1, 5}: 2, {1, 6}: 1, {1, 7}: 3.5,
		{2, 2}: 4,
	}
	return f, estimates
}

func (suite *DifferenceTestSuite) TestFixedThresholdClassification() {
	f, estimates := newClassificationFold()
	config := newDifferenceConfig()
	config.EnableClassification = true
	config.FixedThreshold = 3
	metrics, err := suite.newEvaluator(config).evaluateFold(context.Background(), f, builderOf(estimates), zap.NewNop())
	suite.NoError(err)
	// user 1: TP, FP, FN, TN, TP; user 2: FP
	suite.InDelta(0.5, metrics[Accuracy], 1e-9)
	suite.InDelta(0.5, metrics[Precision], 1e-9)
	suite.InDelta(2.0/3, metrics[Recall], 1e-9)
	suite.InDelta(1.0, metrics[Coverage], 1e-9)
	suite.InDelta(8.5/6, metrics[MAE], 1e-9)
}

func (suite *DifferenceTestSuite) TestAdaptiveThresholdClassification() {
	f, estimates := newClassificationFold()
	config := newDifferenceConfig()
	config.EnableClassification = true
	config.AdaptiveThreshold = true
	config.FixedThreshold = 100
	metrics, err := suite.newEvaluator(config).evaluateFold(context.Background(), f, builderOf(estimates), zap.NewNop())
	suite.NoError(err)
	// user 1 has threshold 3 + 2 = 5: FP, TN, FN, TN, TN
	// user 2 has threshold -Inf: TP
	suite.InDelta(4.0/6, metrics[Accuracy], 1e-9)
	suite.InDelta(0.5, metrics[Precision], 1e-9)
	suite.InDelta(0.5, metrics[Recall], 1e-9)
}

func (suite *DifferenceTestSuite) TestNoPredictedPositive() {
	b := dataset.NewBuilder()
	b.Add(1, 1, 3)
	f := fold{
		train: b.Build(),
		test: map[int64]dataset.Preferences{1: {
			{UserId: 1, ItemId: 2, Value: 4},
			{UserId: 1, ItemId: 3, Value: 1},
			{UserId: 1, ItemId: 4, Value: 2},
		}},
	}
	estimates := table{{1, 2}: 2, {1, 3}: 1, {1, 4}: 2.5}
	config := newDifferenceConfig()
	config.EnableClassification = true
	config.FixedThreshold = 3
	metrics, err := suite.newEvaluator(config).evaluateFold(context.Background(), f, builderOf(estimates), zap.NewNop())
	suite.NoError(err)
	// FN, TN, TN
	suite.True(math.IsNaN(metrics[Precision]))
	suite.InDelta(2.0/3, metrics[Accuracy], 1e-9)
	suite.Zero(metrics[Recall])
}

func (suite *DifferenceTestSuite) TestAdaptiveThresholdEvaluate() {
	data := newGridDataModel(10, 10)
	config := newDifferenceConfig()
	config.EnableClassification = true
	config.AdaptiveThreshold = true
	result, err := suite.newEvaluator(config).Evaluate(context.Background(), data, oracleBuilder(data))
	suite.NoError(err)
	suite.Equal(Metric{Value: 1}, result[Accuracy])
}

func (suite *DifferenceTestSuite) TestFailure() {
	data := newGridDataModel(5, 5)
	_, err := suite.newEvaluator(newDifferenceConfig()).Evaluate(context.Background(), data, builderOf(broken{}))
	suite.ErrorContains(err, "estimate")

	buildErr := errors.New("build failed")
	_, err = suite.newEvaluator(newDifferenceConfig()).Evaluate(context.Background(), data,
		model.BuilderFunc(func(context.Context, *dataset.DataModel) (model.Recommender, error) {
			return nil, buildErr
		}))
	suite.ErrorIs(err, buildErr)
}

func TestDifferenceEvaluator(t *testing.T) {
	suite.Run(t, new(DifferenceTestSuite))
}

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
	"github.com/gorse-io/gorse-eval/common/parallel"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/gorse-io/gorse-eval/model"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newIRStatsConfig() IRStatsConfig {
	return IRStatsConfig{
		At:                   3,
		RelevanceThreshold:   DefaultFixedThreshold,
		EvaluationPercentage: 1,
		Seed:                 0,
	}
}

func TestIRStatsConfigValidate(t *testing.T) {
	config := newIRStatsConfig()
	config.At = 0
	_, err := NewIRStatsEvaluator(config, parallel.NewRunner())
	assert.True(t, errors.Is(err, errors.NotValid))
	config = newIRStatsConfig()
	config.EvaluationPercentage = 0
	_, err = NewIRStatsEvaluator(config, parallel.NewRunner())
	assert.True(t, errors.Is(err, errors.NotValid))
	e, err := NewIRStatsEvaluator(newIRStatsConfig(), parallel.NewRunner())
	assert.NoError(t, err)
	assert.Equal(t, ThresholdSelector{}, e.config.Selector)
}

func TestThresholdSelector(t *testing.T) {
	prefs := dataset.Preferences{
		{ItemId: 1, Value: 3},
		{ItemId: 2, Value: 5},
		{ItemId: 3, Value: 1},
		{ItemId: 4, Value: 4},
		{ItemId: 5, Value: 5},
	}
	var selector ThresholdSelector
	assert.Equal(t, mapset.NewThreadUnsafeSet[int64](2, 5), selector.SelectRelevant(prefs, 2, 3))
	assert.Equal(t, mapset.NewThreadUnsafeSet[int64](2, 5, 4, 1), selector.SelectRelevant(prefs, 10, 3))
	assert.Zero(t, selector.SelectRelevant(prefs, 10, 6).Cardinality())
	// ties keep storage order
	assert.Equal(t, mapset.NewThreadUnsafeSet[int64](2), selector.SelectRelevant(prefs, 1, 3))
}

func TestRankPositionSelector(t *testing.T) {
	prefs := dataset.Preferences{
		{ItemId: 1, Value: 3},
		{ItemId: 2, Value: 5},
		{ItemId: 3, Value: 1},
	}
	selector := RankPositionSelector{Positions: []int{0, 2, 5}}
	assert.Equal(t, mapset.NewThreadUnsafeSet[int64](2, 3), selector.SelectRelevant(prefs, 3, 10))
}

func TestRankingMetrics(t *testing.T) {
	items := []model.RecommendedItem{{ItemId: 1}, {ItemId: 2}, {ItemId: 3}}
	result := rankingMetrics(items, mapset.NewSet[int64](1, 3, 4), 6, 10)
	assert.True(t, result.considered)
	assert.InDelta(t, 2.0/3, result.precision, 1e-9)
	assert.InDelta(t, 2.0/3, result.recall, 1e-9)
	assert.True(t, result.hasFallout)
	assert.InDelta(t, 1.0/7, result.fallout, 1e-9)
	assert.True(t, result.hasIdealizedGain)
	assert.InDelta(t, 1.5/(1.5+1/math.Log2(3)), result.ndcg, 1e-9)

	// every rating is relevant
	result = rankingMetrics(items, mapset.NewSet[int64](1, 2, 3), 3, 10)
	assert.False(t, result.hasFallout)
	// nothing recommended
	result = rankingMetrics(nil, mapset.NewSet[int64](1), 3, 10)
	assert.Zero(t, result.numRecommended)
	assert.Zero(t, result.recall)
	assert.False(t, result.hasIdealizedGain)
}

// newRankingDataModel has two users whose top three items are rated 5 and three other
// items rated 1, a user without relevant items and a user with relevant items only.
func newRankingDataModel() *dataset.DataModel {
	b := dataset.NewBuilder()
	for _, userId := range []int64{1, 2} {
		for itemId := int64(1); itemId <= 6; itemId++ {
			value := float32(1)
			if itemId <= 3 {
				value = 5
			}
			b.Add(userId, itemId, value)
		}
	}
	b.Add(3, 1, 1)
	b.Add(3, 2, 1)
	b.Add(3, 3, 2)
	b.Add(4, 4, 5)
	b.Add(4, 5, 5)
	b.Add(4, 6, 4)
	return b.Build()
}

func TestIRStatsPerfectRanking(t *testing.T) {
	data := newRankingDataModel()
	e, err := NewIRStatsEvaluator(newIRStatsConfig(), parallel.NewRunner(parallel.WithJobs(2)))
	assert.NoError(t, err)
	stats, err := e.Evaluate(context.Background(), data, oracleBuilder(data))
	assert.NoError(t, err)
	assert.Equal(t, 1.0, stats.Precision())
	assert.Equal(t, 1.0, stats.Recall())
	assert.Equal(t, 1.0, stats.NDCG())
	assert.Equal(t, 0.0, stats.Fallout())
	assert.Equal(t, 1.0, stats.Reach())
	assert.Equal(t, 1.0, stats.F1Measure())
	assert.Equal(t, 2.0, testutil.ToFloat64(SkippedUsersTotal.WithLabelValues("irstats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(IRStatsMetricVec.WithLabelValues(Precision)))
}

func TestIRStatsNoRecommendation(t *testing.T) {
	data := newRankingDataModel()
	e, err := NewIRStatsEvaluator(newIRStatsConfig(), parallel.NewRunner())
	assert.NoError(t, err)
	stats, err := e.Evaluate(context.Background(), data, builderOf(ignorant{}))
	assert.NoError(t, err)
	assert.True(t, math.IsNaN(stats.Precision()))
	assert.Equal(t, 0.0, stats.Recall())
	assert.Equal(t, 0.0, stats.Reach())
	assert.True(t, math.IsNaN(stats.NDCG()))
}

func TestIRStatsBounds(t *testing.T) {
	data := newGridDataModel(20, 15)
	config := newIRStatsConfig()
	config.At = 2
	config.RelevanceThreshold = math.NaN()
	config.Rescorer, _ = NewExprRescorer("", "item != 1")
	e, err := NewIRStatsEvaluator(config, parallel.NewRunner(parallel.WithJobs(4)))
	assert.NoError(t, err)
	stats, err := e.Evaluate(context.Background(), data, model.ItemAverageBuilder())
	assert.NoError(t, err)
	for _, value := range []float64{stats.Precision(), stats.Recall(), stats.Fallout(), stats.NDCG(), stats.Reach()} {
		assert.False(t, value < 0 || value > 1)
	}
	// only held-out items are left to recommend
	assert.Equal(t, 1.0, stats.Precision())

	again, err := e.Evaluate(context.Background(), data, model.ItemAverageBuilder())
	assert.NoError(t, err)
	assert.Equal(t, stats.Metrics(), again.Metrics())
}

func TestIRStatsFailure(t *testing.T) {
	data := newRankingDataModel()
	e, err := NewIRStatsEvaluator(newIRStatsConfig(), parallel.NewRunner())
	assert.NoError(t, err)
	_, err = e.Evaluate(context.Background(), data, builderOf(broken{}))
	assert.ErrorContains(t, err, "recommend")
}

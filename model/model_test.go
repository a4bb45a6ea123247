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
package model

import (
	"context"
	"math"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/gorse-io/gorse-eval/similarity"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func newTestDataModel() *dataset.DataModel {
	b := dataset.NewBuilder()
	b.Add(1, 10, 5)
	b.Add(1, 20, 3)
	b.Add(1, 30, 1)
	b.Add(2, 10, 4)
	b.Add(2, 20, 3)
	b.Add(2, 30, 2)
	b.Add(2, 40, 5)
	b.Add(3, 10, 1)
	b.Add(3, 20, 3)
	b.Add(3, 30, 5)
	b.Add(3, 40, 1)
	b.Add(3, 50, 4)
	return b.Build()
}

type itemFilter map[int64]struct{}

func (f itemFilter) Rescore(_ int64, score float64) float64 {
	return -score
}

func (f itemFilter) IsFiltered(itemId int64) bool {
	_, ok := f[itemId]
	return ok
}

func TestEstimate(t *testing.T) {
	assert.True(t, NewEstimate(1).Ok())
	assert.False(t, NewEstimate(math32.NaN()).Ok())
	assert.Equal(t, NoEstimate, Missing().Status)
}

func TestItemAverage(t *testing.T) {
	recommender, err := ItemAverageBuilder().Build(context.Background(), newTestDataModel())
	assert.NoError(t, err)
	e, err := recommender.Estimate(1, 40)
	assert.NoError(t, err)
	assert.True(t, e.Ok())
	assert.Equal(t, float32(3), e.Value)
	e, err = recommender.Estimate(1, 100)
	assert.NoError(t, err)
	assert.False(t, e.Ok())

	items, err := recommender.Recommend(1, 10, nil)
	assert.NoError(t, err)
	assert.Equal(t, []RecommendedItem{{ItemId: 50, Score: 4}, {ItemId: 40, Score: 3}}, items)
	items, err = recommender.Recommend(1, 1, nil)
	assert.NoError(t, err)
	assert.Equal(t, []RecommendedItem{{ItemId: 50, Score: 4}}, items)
	items, err = recommender.Recommend(1, 10, itemFilter{50: {}})
	assert.NoError(t, err)
	assert.Equal(t, []RecommendedItem{{ItemId: 40, Score: -3}}, items)
	_, err = recommender.Recommend(100, 10, nil)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestUserKNN(t *testing.T) {
	train := newTestDataModel()
	builder := UserKNNBuilder(2, func(_ context.Context, train *dataset.DataModel) (similarity.Similarity, error) {
		return similarity.NewPearson(similarity.Source{Kind: similarity.Users, Ratings: train})
	})
	recommender, err := builder.Build(context.Background(), train)
	assert.NoError(t, err)
	knn := recommender.(*UserKNN)

	neighbors, err := knn.Neighbors(1)
	assert.NoError(t, err)
	assert.Len(t, neighbors, 1)
	assert.Equal(t, int64(2), neighbors[0].Value)
	assert.InDelta(t, 1, neighbors[0].Weight, 1e-6)

	// user 2 is the only positive neighbor of user 1
	e, err := knn.Estimate(1, 40)
	assert.NoError(t, err)
	assert.True(t, e.Ok())
	assert.InDelta(t, 5, e.Value, 1e-5)
	// no neighbor rated item 50
	e, err = knn.Estimate(1, 50)
	assert.NoError(t, err)
	assert.False(t, e.Ok())
	// known preference
	e, err = knn.Estimate(1, 10)
	assert.NoError(t, err)
	assert.Equal(t, float32(5), e.Value)
	// unknown user and item
	e, err = knn.Estimate(100, 10)
	assert.NoError(t, err)
	assert.False(t, e.Ok())
	e, err = knn.Estimate(1, 100)
	assert.NoError(t, err)
	assert.False(t, e.Ok())

	items, err := knn.Recommend(1, 5, nil)
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int64(40), items[0].ItemId)
	assert.False(t, math.IsNaN(items[0].Score))
}

type brokenSimilarity struct{}

func (brokenSimilarity) Similarity(_, _ int64) (float64, error) {
	return 0, errors.New("broken")
}

func TestUserKNNFailure(t *testing.T) {
	knn := NewUserKNN(newTestDataModel(), brokenSimilarity{}, 2)
	_, err := knn.Estimate(1, 40)
	assert.ErrorContains(t, err, "broken")
	_, err = knn.Recommend(1, 5, nil)
	assert.ErrorContains(t, err, "broken")
}

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

	"github.com/gorse-io/gorse-eval/common/heap"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/gorse-io/gorse-eval/similarity"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
)

// SimilarityFactory builds a user similarity on the training data of a fold.
type SimilarityFactory func(ctx context.Context, train *dataset.DataModel) (similarity.Similarity, error)

// UserKNN estimates a preference by the similarity weighted average of the ratings
// given by the k most similar users. Only positively similar users are neighbors.
type UserKNN struct {
	train      *dataset.DataModel
	similarity similarity.Similarity
	k          int
	neighbors  *ttlcache.Cache[int64, []heap.Elem[int64, float64]]
}

// NewUserKNN creates a UserKNN model.
func NewUserKNN(train *dataset.DataModel, sim similarity.Similarity, k int) *UserKNN {
	return &UserKNN{
		train:      train,
		similarity: sim,
		k:          k,
		neighbors:  ttlcache.New[int64, []heap.Elem[int64, float64]](),
	}
}

func UserKNNBuilder(k int, factory SimilarityFactory) Builder {
	return BuilderFunc(func(ctx context.Context, train *dataset.DataModel) (Recommender, error) {
		sim, err := factory(ctx, train)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewUserKNN(train, sim, k), nil
	})
}

// Neighbors returns the k nearest neighbors of a user with decreasing similarity.
func (knn *UserKNN) Neighbors(userId int64) ([]heap.Elem[int64, float64], error) {
	if item := knn.neighbors.Get(userId); item != nil {
		return item.Value(), nil
	}
	filter := heap.NewTopKFilter[int64, float64](knn.k)
	for _, otherId := range knn.train.UserIDs() {
		if otherId == userId {
			continue
		}
		score, err := knn.similarity.Similarity(userId, otherId)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if math.IsNaN(score) || score <= 0 {
			continue
		}
		filter.Push(otherId, score)
	}
	neighbors := filter.PopAll()
	knn.neighbors.Set(userId, neighbors, ttlcache.NoTTL)
	return neighbors, nil
}

func (knn *UserKNN) Estimate(userId, itemId int64) (Estimate, error) {
	if !knn.train.HasUser(userId) || !knn.train.HasItem(itemId) {
		return Missing(), nil
	}
	if value, ok := knn.train.PreferenceValue(userId, itemId); ok {
		return NewEstimate(value), nil
	}
	neighbors, err := knn.Neighbors(userId)
	if err != nil {
		return Missing(), errors.Trace(err)
	}
	var sum, total float64
	for _, neighbor := range neighbors {
		if value, ok := knn.train.PreferenceValue(neighbor.Value, itemId); ok {
			sum += neighbor.Weight * float64(value)
			total += neighbor.Weight
		}
	}
	if total == 0 {
		return Missing(), nil
	}
	return NewEstimate(float32(sum / total)), nil
}

func (knn *UserKNN) Recommend(userId int64, n int, rescorer Rescorer) ([]RecommendedItem, error) {
	items, err := recommend(knn.train, func(itemId int64) (Estimate, error) {
		return knn.Estimate(userId, itemId)
	}, userId, n, rescorer)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return items, nil
}

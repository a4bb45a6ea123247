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

// Package model defines the contract between evaluators and recommenders, and
// provides reference recommenders to evaluate.
package model

import (
	"context"
	"math"

	"github.com/chewxy/math32"
	"github.com/gorse-io/gorse-eval/common/heap"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/juju/errors"
)

type EstimateStatus int

const (
	Estimated EstimateStatus = iota
	// NoEstimate means the recommender knows nothing about the user or the item.
	NoEstimate
)

// Estimate is the outcome of a preference estimation. Failures are reported as errors
// instead.
type Estimate struct {
	Value  float32
	Status EstimateStatus
}

// NewEstimate wraps a value. NaN becomes NoEstimate.
func NewEstimate(value float32) Estimate {
	if math32.IsNaN(value) {
		return Missing()
	}
	return Estimate{Value: value, Status: Estimated}
}

func Missing() Estimate {
	return Estimate{Value: math32.NaN(), Status: NoEstimate}
}

func (e Estimate) Ok() bool {
	return e.Status == Estimated
}

type RecommendedItem struct {
	ItemId int64
	Score  float64
}

// Rescorer adjusts or filters candidate items before ranking.
type Rescorer interface {
	Rescore(itemId int64, score float64) float64
	IsFiltered(itemId int64) bool
}

// Recommender is a model trained on a rating store. Implementations must be safe for
// concurrent use.
type Recommender interface {
	// Estimate the preference of a user for an item.
	Estimate(userId, itemId int64) (Estimate, error)
	// Recommend at most n items the user has not rated, best first. rescorer may be nil.
	Recommend(userId int64, n int, rescorer Rescorer) ([]RecommendedItem, error)
}

// Builder trains a recommender. Evaluators call it once per fold or seed.
type Builder interface {
	Build(ctx context.Context, train *dataset.DataModel) (Recommender, error)
}

type BuilderFunc func(ctx context.Context, train *dataset.DataModel) (Recommender, error)

func (f BuilderFunc) Build(ctx context.Context, train *dataset.DataModel) (Recommender, error) {
	return f(ctx, train)
}

// recommend ranks the items the user has not rated by their estimates.
func recommend(train *dataset.DataModel, estimate func(itemId int64) (Estimate, error), userId int64, n int, rescorer Rescorer) ([]RecommendedItem, error) {
	prefs, err := train.PreferencesOfUser(userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	rated := make(map[int64]struct{}, len(prefs))
	for _, pref := range prefs {
		rated[pref.ItemId] = struct{}{}
	}
	filter := heap.NewTopKFilter[int64, float64](n)
	for _, itemId := range train.ItemIDs() {
		if _, ok := rated[itemId]; ok {
			continue
		}
		if rescorer != nil && rescorer.IsFiltered(itemId) {
			continue
		}
		e, err := estimate(itemId)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if !e.Ok() {
			continue
		}
		score := float64(e.Value)
		if rescorer != nil {
			score = rescorer.Rescore(itemId, score)
		}
		if math.IsNaN(score) {
			continue
		}
		filter.Push(itemId, score)
	}
	elems := filter.PopAll()
	items := make([]RecommendedItem, len(elems))
	for i, elem := range elems {
		items[i] = RecommendedItem{ItemId: elem.Value, Score: elem.Weight}
	}
	return items, nil
}

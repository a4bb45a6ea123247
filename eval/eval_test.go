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
	"slices"

	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/gorse-io/gorse-eval/model"
	"github.com/juju/errors"
)

// oracle knows every rating of the full data and recommends exactly the items held
// out of the training data, best first.
type oracle struct {
	full  *dataset.DataModel
	train *dataset.DataModel
}

func oracleBuilder(full *dataset.DataModel) model.Builder {
	return model.BuilderFunc(func(_ context.Context, train *dataset.DataModel) (model.Recommender, error) {
		return &oracle{full: full, train: train}, nil
	})
}

func (o *oracle) Estimate(userId, itemId int64) (model.Estimate, error) {
	if value, ok := o.full.PreferenceValue(userId, itemId); ok {
		return model.NewEstimate(value), nil
	}
	return model.Missing(), nil
}

func (o *oracle) Recommend(userId int64, n int, _ model.Rescorer) ([]model.RecommendedItem, error) {
	prefs, err := o.full.PreferencesOfUser(userId)
	if err != nil {
		return nil, err
	}
	var items []model.RecommendedItem
	for _, pref := range prefs {
		if _, ok := o.train.PreferenceValue(userId, pref.ItemId); !ok {
			items = append(items, model.RecommendedItem{ItemId: pref.ItemId, Score: float64(pref.Value)})
		}
	}
	slices.SortStableFunc(items, func(a, b model.RecommendedItem) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.ItemId, b.ItemId))
	})
	return items[:min(n, len(items))], nil
}

// ignorant never knows anything.
type ignorant struct{}

func (ignorant) Estimate(int64, int64) (model.Estimate, error) {
	return model.Missing(), nil
}

func (ignorant) Recommend(int64, int, model.Rescorer) ([]model.RecommendedItem, error) {
	return nil, nil
}

// broken fails on every call.
type broken struct{}

func (broken) Estimate(userId, itemId int64) (model.Estimate, error) {
	return model.Estimate{}, errors.Errorf("estimate %d/%d", userId, itemId)
}

func (broken) Recommend(userId int64, _ int, _ model.Rescorer) ([]model.RecommendedItem, error) {
	return nil, errors.Errorf("recommend to %d", userId)
}

// table estimates preferences from a fixed lookup of (user, item) pairs.
type table map[[2]int64]float32

func (t table) Estimate(userId, itemId int64) (model.Estimate, error) {
	if value, ok := t[[2]int64{userId, itemId}]; ok {
		return model.NewEstimate(value), nil
	}
	return model.Missing(), nil
}

func (t table) Recommend(int64, int, model.Rescorer) ([]model.RecommendedItem, error) {
	return nil, nil
}

func builderOf(r model.Recommender) model.Builder {
	return model.BuilderFunc(func(context.Context, *dataset.DataModel) (model.Recommender, error) {
		return r, nil
	})
}

// newGridDataModel creates numUsers users rating numItems items from 1 to 5.
func newGridDataModel(numUsers, numItems int) *dataset.DataModel {
	b := dataset.NewBuilder()
	for u := 1; u <= numUsers; u++ {
		for i := 1; i <= numItems; i++ {
			b.Add(int64(u), int64(i), float32((u*i+i/3)%5+1))
		}
	}
	return b.Build()
}

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

package model

import (
	"context"

	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/juju/errors"
)

// ItemAverage estimates every preference by the mean rating of the item.
type ItemAverage struct {
	train    *dataset.DataModel
	averages map[int64]float32
}

func NewItemAverage(train *dataset.DataModel) *ItemAverage {
	averages := make(map[int64]float32, train.NumItems())
	for _, itemId := range train.ItemIDs() {
		prefs, _ := train.PreferencesForItem(itemId)
		var sum float32
		for _, pref := range prefs {
			sum += pref.Value
		}
		averages[itemId] = sum / float32(len(prefs))
	}
	return &ItemAverage{train: train, averages: averages}
}

func ItemAverageBuilder() Builder {
	return BuilderFunc(func(_ context.Context, train *dataset.DataModel) (Recommender, error) {
		return NewItemAverage(train), nil
	})
}

func (m *ItemAverage) Estimate(_, itemId int64) (Estimate, error) {
	average, ok := m.averages[itemId]
	if !ok {
		return Missing(), nil
	}
	return NewEstimate(average), nil
}

func (m *ItemAverage) Recommend(userId int64, n int, rescorer Rescorer) ([]RecommendedItem, error) {
	items, err := recommend(m.train, func(itemId int64) (Estimate, error) {
		return m.Estimate(userId, itemId)
	}, userId, n, rescorer)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return items, nil
}

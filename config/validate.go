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

package config

import (
	"github.com/go-playground/validator/v10"
	"github.com/gorse-io/gorse-eval/eval"
	"github.com/gorse-io/gorse-eval/similarity"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value ranges and the consistency between sections.
func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	if config.Split.Layout == KFoldLayout && config.Split.Folds < 2 {
		return errors.NotValidf("%d folds", config.Split.Folds)
	}
	if !config.Difference.EnableMAE && !config.Difference.EnableRMSE && !config.Difference.EnableClassification {
		return errors.NotValidf("no difference metric enabled")
	}
	if config.IRStats.Selector == RankPositionSelector && len(config.IRStats.RankPositions) == 0 {
		return errors.NotValidf("rank position selector without positions")
	}
	if _, err := eval.NewExprRescorer(config.IRStats.ScoreExpression, config.IRStats.FilterExpression); err != nil {
		return errors.Trace(err)
	}

	registry := similarity.NewRegistry()
	attributes := config.AttributeNames()
	known := func(name string) bool {
		return registry.Has(name, attributes...)
	}
	if len(config.Similarity.Weights) > 0 {
		if err := similarity.ValidateWeights(config.Similarity.Weights, known); err != nil {
			return errors.Trace(err)
		}
	}
	if config.Recommender.Type == UserKNNRecommender {
		if config.Recommender.Similarity == HybridSimilarity {
			if len(config.Similarity.Weights) == 0 {
				return errors.NotValidf("hybrid similarity without weights")
			}
		} else if !known(config.Recommender.Similarity) {
			return errors.NotFoundf("similarity criterion %s", config.Recommender.Similarity)
		}
	}
	if duplicates := lo.FindDuplicates(attributes); len(duplicates) > 0 {
		return errors.NotValidf("duplicate attribute sources %v", duplicates)
	}
	return nil
}

// AttributeNames returns the names of attribute sources in declaration order.
func (config *Config) AttributeNames() []string {
	return lo.Map(config.Data.Attributes, func(a AttributeConfig, _ int) string {
		return a.Name
	})
}

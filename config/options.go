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
	"context"
	"math"

	"github.com/gorse-io/gorse-eval/common/parallel"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/gorse-io/gorse-eval/eval"
	"github.com/gorse-io/gorse-eval/model"
	"github.com/gorse-io/gorse-eval/similarity"
	"github.com/juju/errors"
)

func (config *Config) LoadOptions() dataset.LoadOptions {
	return dataset.LoadOptions{
		Query:     config.Data.Query,
		Separator: config.Data.Separator,
		Header:    config.Data.Header,
	}
}

// LoadAttributes reads every attribute source keyed by name.
func (config *Config) LoadAttributes() (map[string]*dataset.Attributes, error) {
	attributes := make(map[string]*dataset.Attributes, len(config.Data.Attributes))
	for _, source := range config.Data.Attributes {
		separator := source.Separator
		if separator == "" {
			separator = config.Data.Separator
		}
		a, err := dataset.LoadAttributes(source.Name, source.Path, separator, source.Header)
		if err != nil {
			return nil, errors.Annotatef(err, "load attributes %s", source.Name)
		}
		attributes[source.Name] = a
	}
	return attributes, nil
}

func (config *Config) NewRunner(opts ...parallel.RunnerOption) *parallel.Runner {
	return parallel.NewRunner(append([]parallel.RunnerOption{
		parallel.WithJobs(config.Runner.Jobs),
		parallel.WithTimeout(config.Runner.Timeout),
	}, opts...)...)
}

func (config *Config) DifferenceConfig() eval.DifferenceConfig {
	c := eval.DifferenceConfig{
		Mode:                 eval.SplitMode(config.Split.Mode),
		TrainFraction:        config.Split.TrainFraction,
		EvaluationPercentage: config.Split.EvaluationPercentage,
		Seeds:                config.Split.Seeds,
		EnableMAE:            config.Difference.EnableMAE,
		EnableRMSE:           config.Difference.EnableRMSE,
		EnableClassification: config.Difference.EnableClassification,
		AdaptiveThreshold:    config.Difference.AdaptiveThreshold,
		FixedThreshold:       config.Difference.FixedThreshold,
	}
	if config.Split.Layout == KFoldLayout {
		c.Folds = config.Split.Folds
	}
	return c
}

func (config *Config) IRStatsConfig() (eval.IRStatsConfig, error) {
	c := eval.IRStatsConfig{
		At:                   config.IRStats.At,
		RelevanceThreshold:   config.IRStats.RelevanceThreshold,
		EvaluationPercentage: config.Split.EvaluationPercentage,
		Seed:                 config.IRStats.Seed,
	}
	if config.IRStats.AdaptiveThreshold {
		c.RelevanceThreshold = math.NaN()
	}
	if config.IRStats.Selector == RankPositionSelector {
		c.Selector = eval.RankPositionSelector{Positions: config.IRStats.RankPositions}
	}
	if config.IRStats.ScoreExpression != "" || config.IRStats.FilterExpression != "" {
		rescorer, err := eval.NewExprRescorer(config.IRStats.ScoreExpression, config.IRStats.FilterExpression)
		if err != nil {
			return eval.IRStatsConfig{}, errors.Trace(err)
		}
		c.Rescorer = rescorer
	}
	return c, nil
}

// NewBuilder creates the builder of the configured recommender. User similarities are
// computed on the training data of each fold together with the attribute sources.
func (config *Config) NewBuilder(attributes map[string]*dataset.Attributes, runner *parallel.Runner) model.Builder {
	if config.Recommender.Type == ItemAverageRecommender {
		return model.ItemAverageBuilder()
	}
	registry := similarity.NewRegistry()
	name := config.Recommender.Similarity
	weights := config.Similarity.Weights
	return model.UserKNNBuilder(config.Recommender.Neighbors, func(ctx context.Context, train *dataset.DataModel) (similarity.Similarity, error) {
		source := similarity.Source{Kind: similarity.Users, Ratings: train, Attributes: attributes}
		if name == HybridSimilarity {
			hybrid, err := similarity.BuildHybrid(ctx, source, weights, registry, runner)
			if err != nil {
				return nil, errors.Trace(err)
			}
			return hybrid, nil
		}
		return registry.New(name, source)
	})
}

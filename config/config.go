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
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/gorse-eval/base"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/gorse-io/gorse-eval/eval"
	"github.com/gorse-io/gorse-eval/similarity"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const (
	HoldOutLayout = "holdout"
	KFoldLayout   = "kfold"

	ThresholdSelector    = "threshold"
	RankPositionSelector = "rank_position"

	ItemAverageRecommender = "item_average"
	UserKNNRecommender     = "user_knn"

	// HybridSimilarity selects the weighted combination of [similarity.weights].
	HybridSimilarity = "hybrid"

	// EnvPrefix prefixes environment variables overriding config keys, e.g.
	// GORSE_EVAL_SPLIT_MODE overrides split.mode.
	EnvPrefix = "GORSE_EVAL"
)

// Config is the configuration of evaluation runs.
type Config struct {
	Data        DataConfig        `mapstructure:"data"`
	Split       SplitConfig       `mapstructure:"split"`
	Difference  DifferenceConfig  `mapstructure:"difference"`
	IRStats     IRStatsConfig     `mapstructure:"irstats"`
	Similarity  SimilarityConfig  `mapstructure:"similarity"`
	Recommender RecommenderConfig `mapstructure:"recommender"`
	Runner      RunnerConfig      `mapstructure:"runner"`
}

// DataConfig is the configuration of ratings and attributes.
type DataConfig struct {
	Source     string            `mapstructure:"source" validate:"required"`
	Query      string            `mapstructure:"query"`
	Separator  string            `mapstructure:"separator" validate:"required"`
	Header     bool              `mapstructure:"header"`
	Attributes []AttributeConfig `mapstructure:"attributes" validate:"dive"`
}

// AttributeConfig is a CSV file of entity attributes. The name doubles as the name of
// its Jaccard criterion.
type AttributeConfig struct {
	Name      string `mapstructure:"name" validate:"required"`
	Path      string `mapstructure:"path" validate:"required"`
	Separator string `mapstructure:"separator"`
	Header    bool   `mapstructure:"header"`
}

// SplitConfig is the configuration of train/test splitting.
type SplitConfig struct {
	Mode                 string  `mapstructure:"mode" validate:"oneof=random stratified"`
	Layout               string  `mapstructure:"layout" validate:"oneof=holdout kfold"`
	TrainFraction        float64 `mapstructure:"train_fraction" validate:"gte=0,lte=1"`
	Folds                int     `mapstructure:"folds" validate:"gte=0"`
	EvaluationPercentage float64 `mapstructure:"evaluation_percentage" validate:"gt=0,lte=1"`
	Seeds                []int64 `mapstructure:"seeds"`
}

// DifferenceConfig is the configuration of rating prediction evaluation.
type DifferenceConfig struct {
	EnableMAE            bool    `mapstructure:"enable_mae"`
	EnableRMSE           bool    `mapstructure:"enable_rmse"`
	EnableClassification bool    `mapstructure:"enable_classification"`
	AdaptiveThreshold    bool    `mapstructure:"adaptive_threshold"`
	FixedThreshold       float64 `mapstructure:"fixed_threshold"`
}

// IRStatsConfig is the configuration of ranking evaluation.
type IRStatsConfig struct {
	At                 int     `mapstructure:"at" validate:"gt=0"`
	AdaptiveThreshold  bool    `mapstructure:"adaptive_threshold"`
	RelevanceThreshold float64 `mapstructure:"relevance_threshold"`
	Selector           string  `mapstructure:"selector" validate:"oneof=threshold rank_position"`
	RankPositions      []int   `mapstructure:"rank_positions" validate:"dive,gte=0"`
	ScoreExpression    string  `mapstructure:"score_expression"`
	FilterExpression   string  `mapstructure:"filter_expression"`
	Seed               int64   `mapstructure:"seed"`
}

// SimilarityConfig is the configuration of the hybrid similarity.
type SimilarityConfig struct {
	Kind    string             `mapstructure:"kind" validate:"oneof=users items"`
	Weights map[string]float64 `mapstructure:"weights"`
}

// RecommenderConfig is the configuration of the evaluated recommender.
type RecommenderConfig struct {
	Type       string `mapstructure:"type" validate:"oneof=item_average user_knn"`
	Neighbors  int    `mapstructure:"neighbors" validate:"gt=0"`
	Similarity string `mapstructure:"similarity" validate:"required"`
}

// RunnerConfig is the configuration of parallel tasks.
type RunnerConfig struct {
	// Jobs is the number of workers. Zero uses one worker per CPU.
	Jobs    int           `mapstructure:"jobs" validate:"gte=0"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Query:     dataset.DefaultQuery,
			Separator: ",",
		},
		Split: SplitConfig{
			Mode:                 string(eval.RandomSplit),
			Layout:               HoldOutLayout,
			TrainFraction:        0.7,
			Folds:                5,
			EvaluationPercentage: 1,
		},
		Difference: DifferenceConfig{
			EnableMAE:      true,
			EnableRMSE:     true,
			FixedThreshold: eval.DefaultFixedThreshold,
		},
		IRStats: IRStatsConfig{
			At:                 10,
			AdaptiveThreshold:  true,
			RelevanceThreshold: eval.DefaultFixedThreshold,
			Selector:           ThresholdSelector,
			Seed:               base.NonDeterministicSeed,
		},
		Similarity: SimilarityConfig{
			Kind: string(similarity.Items),
		},
		Recommender: RecommenderConfig{
			Type:       UserKNNRecommender,
			Neighbors:  20,
			Similarity: similarity.Pearson,
		},
		Runner: RunnerConfig{
			Timeout: 30 * time.Minute,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [data]
	v.SetDefault("data.source", defaultConfig.Data.Source)
	v.SetDefault("data.query", defaultConfig.Data.Query)
	v.SetDefault("data.separator", defaultConfig.Data.Separator)
	v.SetDefault("data.header", defaultConfig.Data.Header)
	// [split]
	v.SetDefault("split.mode", defaultConfig.Split.Mode)
	v.SetDefault("split.layout", defaultConfig.Split.Layout)
	v.SetDefault("split.train_fraction", defaultConfig.Split.TrainFraction)
	v.SetDefault("split.folds", defaultConfig.Split.Folds)
	v.SetDefault("split.evaluation_percentage", defaultConfig.Split.EvaluationPercentage)
	v.SetDefault("split.seeds", []int64{})
	// [difference]
	v.SetDefault("difference.enable_mae", defaultConfig.Difference.EnableMAE)
	v.SetDefault("difference.enable_rmse", defaultConfig.Difference.EnableRMSE)
	v.SetDefault("difference.enable_classification", defaultConfig.Difference.EnableClassification)
	v.SetDefault("difference.adaptive_threshold", defaultConfig.Difference.AdaptiveThreshold)
	v.SetDefault("difference.fixed_threshold", defaultConfig.Difference.FixedThreshold)
	// [irstats]
	v.SetDefault("irstats.at", defaultConfig.IRStats.At)
	v.SetDefault("irstats.adaptive_threshold", defaultConfig.IRStats.AdaptiveThreshold)
	v.SetDefault("irstats.relevance_threshold", defaultConfig.IRStats.RelevanceThreshold)
	v.SetDefault("irstats.selector", defaultConfig.IRStats.Selector)
	v.SetDefault("irstats.score_expression", defaultConfig.IRStats.ScoreExpression)
	v.SetDefault("irstats.filter_expression", defaultConfig.IRStats.FilterExpression)
	v.SetDefault("irstats.seed", defaultConfig.IRStats.Seed)
	// [similarity]
	v.SetDefault("similarity.kind", defaultConfig.Similarity.Kind)
	// [recommender]
	v.SetDefault("recommender.type", defaultConfig.Recommender.Type)
	v.SetDefault("recommender.neighbors", defaultConfig.Recommender.Neighbors)
	v.SetDefault("recommender.similarity", defaultConfig.Recommender.Similarity)
	// [runner]
	v.SetDefault("runner.jobs", defaultConfig.Runner.Jobs)
	v.SetDefault("runner.timeout", defaultConfig.Runner.Timeout)
}

// LoadConfig loads configuration from a TOML file. Keys missing from the file take
// default values and environment variables take precedence over the file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefault(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Annotatef(err, "read config %s", path)
	}
	var conf Config
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Annotate(err, "decode config")
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gorse-io/gorse-eval/base/log"
	"github.com/gorse-io/gorse-eval/cmd/version"
	"github.com/gorse-io/gorse-eval/common/parallel"
	"github.com/gorse-io/gorse-eval/config"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/gorse-io/gorse-eval/eval"
	"github.com/gorse-io/gorse-eval/similarity"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var conf *config.Config

var rootCommand = &cobra.Command{
	Use:           "gorse-eval",
	Short:         "Offline evaluation of recommenders and hybrid similarities.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCommand.Name() {
			return nil
		}
		// setup logger
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		otel.SetErrorHandler(log.GetErrorHandler())
		// load config
		configPath, _ := cmd.Flags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		var err error
		if conf, err = config.LoadConfig(configPath); err != nil {
			return errors.Trace(err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		defer log.CloseLogger()
		metricsFile, _ := cmd.Flags().GetString("metrics-file")
		if metricsFile == "" {
			return nil
		}
		if err := prometheus.WriteToTextfile(metricsFile, prometheus.DefaultGatherer); err != nil {
			return errors.Annotatef(err, "write metrics to %s", metricsFile)
		}
		log.Logger().Info("write metrics", zap.String("path", metricsFile))
		return nil
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show the version of gorse-eval",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

var differenceCommand = &cobra.Command{
	Use:   "difference",
	Short: "Evaluate the accuracy of estimated ratings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, attributes, err := loadData(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		runner := conf.NewRunner()
		evaluator, err := eval.NewDifferenceEvaluator(conf.DifferenceConfig(), runner)
		if err != nil {
			return errors.Trace(err)
		}
		result, err := evaluator.Evaluate(ctx, data, conf.NewBuilder(attributes, runner))
		if err != nil {
			return errors.Trace(err)
		}
		return renderMetrics(cmd.OutOrStdout(), result)
	},
}

var irstatsCommand = &cobra.Command{
	Use:   "irstats",
	Short: "Evaluate the quality of recommendation lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, attributes, err := loadData(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		runner := conf.NewRunner()
		irConfig, err := conf.IRStatsConfig()
		if err != nil {
			return errors.Trace(err)
		}
		evaluator, err := eval.NewIRStatsEvaluator(irConfig, runner)
		if err != nil {
			return errors.Trace(err)
		}
		stats, err := evaluator.Evaluate(ctx, data, conf.NewBuilder(attributes, runner))
		if err != nil {
			return errors.Trace(err)
		}
		return renderIRStatistics(cmd.OutOrStdout(), stats)
	},
}

var similarityCommand = &cobra.Command{
	Use:   "similarity",
	Short: "Build the hybrid similarity and show the most similar entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, attributes, err := loadData(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		source := similarity.Source{
			Kind:       similarity.EntityKind(conf.Similarity.Kind),
			Ratings:    data,
			Attributes: attributes,
		}
		bar := progressbar.Default(int64(len(source.IDs())), "Building similarity")
		runner := conf.NewRunner(parallel.WithProgress(func() {
			_ = bar.Add(1)
		}))
		hybrid, err := similarity.BuildHybrid(ctx, source, conf.Similarity.Weights, similarity.NewRegistry(), runner)
		if err != nil {
			return errors.Trace(err)
		}
		_ = bar.Finish()
		top, _ := cmd.Flags().GetInt("top")
		return renderNeighbors(cmd.OutOrStdout(), hybrid, top)
	},
}

// loadData reads ratings and attribute sources.
func loadData(ctx context.Context) (*dataset.DataModel, map[string]*dataset.Attributes, error) {
	data, err := dataset.Load(ctx, conf.Data.Source, conf.LoadOptions())
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	attributes, err := conf.LoadAttributes()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return data, attributes, nil
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "config.toml", "configuration file path")
	rootCommand.PersistentFlags().String("metrics-file", "", "write metrics of the run to a Prometheus text file")
	similarityCommand.Flags().Int("top", 5, "number of most similar entities to show")
	rootCommand.AddCommand(differenceCommand, irstatsCommand, similarityCommand, versionCommand)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCommand.ExecuteContext(ctx); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}

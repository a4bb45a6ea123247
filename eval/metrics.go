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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelMetric    = "metric"
	LabelStat      = "stat"
	LabelEvaluator = "evaluator"
)

var (
	DifferenceMetricVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse_eval",
		Name:      "difference_metric",
		Help:      "Difference metrics of the last evaluation.",
	}, []string{LabelMetric, LabelStat})
	IRStatsMetricVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse_eval",
		Name:      "irstats_metric",
		Help:      "Ranking metrics of the last evaluation.",
	}, []string{LabelMetric})
	SkippedUsersTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse_eval",
		Name:      "skipped_users",
		Help:      "Users skipped by the last evaluation.",
	}, []string{LabelEvaluator})
)

func exportMetrics(result MetricsResult, skipped int64) {
	for name, metric := range result {
		DifferenceMetricVec.WithLabelValues(name, "mean").Set(metric.Value)
		DifferenceMetricVec.WithLabelValues(name, "stddev").Set(metric.StdDev)
	}
	SkippedUsersTotal.WithLabelValues("difference").Set(float64(skipped))
}

func exportIRStatistics(stats *IRStatistics, skipped int64) {
	for name, metric := range stats.Metrics() {
		IRStatsMetricVec.WithLabelValues(name).Set(metric.Value)
	}
	SkippedUsersTotal.WithLabelValues("irstats").Set(float64(skipped))
}

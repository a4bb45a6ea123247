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
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gorse-io/gorse-eval/common/heap"
	"github.com/gorse-io/gorse-eval/eval"
	"github.com/gorse-io/gorse-eval/similarity"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', 6, 64)
}

func renderMetrics(w io.Writer, result eval.MetricsResult) error {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Mean", "StdDev")
	for _, name := range result.Names() {
		metric := result[name]
		if err := table.Append([]string{name, formatFloat(metric.Value), formatFloat(metric.StdDev)}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

func renderIRStatistics(w io.Writer, stats *eval.IRStatistics) error {
	result := stats.Metrics()
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	for _, name := range result.Names() {
		if err := table.Append([]string{name, formatFloat(result[name].Value)}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

// renderNeighbors shows the top most similar entities of every entity.
func renderNeighbors(w io.Writer, hybrid *similarity.Hybrid, top int) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Neighbors")
	ids := hybrid.IDs()
	for _, id := range ids {
		filter := heap.NewTopKFilter[int64, float64](top)
		for _, other := range ids {
			if other == id {
				continue
			}
			score, err := hybrid.Similarity(id, other)
			if err != nil {
				return errors.Trace(err)
			}
			if !math.IsNaN(score) {
				filter.Push(other, score)
			}
		}
		neighbors := lo.Map(filter.PopAll(), func(e heap.Elem[int64, float64], _ int) string {
			return strconv.FormatInt(e.Value, 10) + ":" + strconv.FormatFloat(e.Weight, 'f', 3, 64)
		})
		if err := table.Append([]string{strconv.FormatInt(id, 10), strings.Join(neighbors, " ")}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

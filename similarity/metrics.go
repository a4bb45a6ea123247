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

package similarity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HybridPairs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse_eval",
		Name:      "similarity_pairs",
		Help:      "Number of pairs in the last hybrid similarity matrix.",
	}, []string{"kind"})
	HybridSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse_eval",
		Name:      "similarity_seconds",
		Help:      "Time spent building the last hybrid similarity matrix.",
	}, []string{"kind"})
)

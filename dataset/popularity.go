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

package dataset

import (
	"slices"
)

// PopularityRanking ranks items by their number of ratings, most popular first. Ties
// are broken by ascending item id.
func PopularityRanking(m *DataModel) []int64 {
	ranking := slices.Clone(m.ItemIDs())
	slices.SortStableFunc(ranking, func(a, b int64) int {
		return len(m.items[b]) - len(m.items[a])
	})
	return ranking
}

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
	"bufio"
	"maps"
	"os"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/gorse-eval/base"
	"github.com/juju/errors"
)

// Attributes maps entities to sets of categorical values, such as the professors
// teaching a subject or the keywords of its content.
type Attributes struct {
	name string
	sets map[int64]mapset.Set[string]
}

func NewAttributes(name string) *Attributes {
	return &Attributes{name: name, sets: make(map[int64]mapset.Set[string])}
}

func (a *Attributes) Name() string {
	return a.name
}

func (a *Attributes) Add(id int64, values ...string) {
	set, ok := a.sets[id]
	if !ok {
		set = mapset.NewThreadUnsafeSet[string]()
		a.sets[id] = set
	}
	set.Append(values...)
}

// Get returns the attribute set of an entity or nil.
func (a *Attributes) Get(id int64) mapset.Set[string] {
	return a.sets[id]
}

// IDs returns entity ids in ascending order.
func (a *Attributes) IDs() []int64 {
	return slices.Sorted(maps.Keys(a.sets))
}

// LoadAttributes reads `id<sep>value` lines from a CSV file. Empty values are skipped.
func LoadAttributes(name, path, sep string, header bool) (*Attributes, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	attributes := NewAttributes(name)
	var parseErr error
	err = base.ReadLines(bufio.NewScanner(file), sep, func(line int, fields []string) bool {
		if line == 0 && header {
			return true
		}
		if len(fields) < 2 {
			parseErr = errors.NotValidf("line %d of %s", line+1, path)
			return false
		}
		id, err := base.ParseID(fields[0])
		if err != nil {
			parseErr = errors.Annotatef(err, "line %d of %s", line+1, path)
			return false
		}
		if value := strings.TrimSpace(fields[1]); value != "" {
			attributes.Add(id, value)
		}
		return true
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return attributes, nil
}

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
	"maps"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/juju/errors"
)

// Similarity measures how alike two entities are. Implementations must be safe for
// concurrent use and symmetric. NaN means the similarity is undefined.
type Similarity interface {
	Similarity(a, b int64) (float64, error)
}

type EntityKind string

const (
	Users EntityKind = "users"
	Items EntityKind = "items"
)

// Source is the data criteria are computed from. Ratings may be nil when only
// attributes are available.
type Source struct {
	Kind       EntityKind
	Ratings    *dataset.DataModel
	Attributes map[string]*dataset.Attributes
}

// IDs returns the entity universe in ascending order: ids of the rating store if
// present, otherwise the union of ids of all attribute sources.
func (s Source) IDs() []int64 {
	if s.Ratings != nil {
		if s.Kind == Items {
			return s.Ratings.ItemIDs()
		}
		return s.Ratings.UserIDs()
	}
	ids := mapset.NewThreadUnsafeSet[int64]()
	for _, attributes := range s.Attributes {
		ids.Append(attributes.IDs()...)
	}
	result := ids.ToSlice()
	slices.Sort(result)
	return result
}

// Factory creates a criterion bound to a data source.
type Factory func(source Source) (Similarity, error)

// Registry maps criterion names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry holding the rating based criteria.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		Pearson:       NewPearson,
		Cosine:        NewCosine,
		Euclidean:     NewEuclidean,
		Tanimoto:      NewTanimoto,
		LogLikelihood: NewLogLikelihood,
	}}
}

// Register adds or replaces a criterion.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Names returns registered criterion names in ascending order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.factories))
}

// Has reports whether a name resolves to a criterion for the given attribute sources.
func (r *Registry) Has(name string, attributes ...string) bool {
	if _, ok := r.factories[name]; ok {
		return true
	}
	return slices.Contains(attributes, name)
}

// New instantiates a criterion. Names of attribute sources resolve to the Jaccard
// index over that source.
func (r *Registry) New(name string, source Source) (Similarity, error) {
	if factory, ok := r.factories[name]; ok {
		sim, err := factory(source)
		if err != nil {
			return nil, errors.Annotatef(err, "create similarity %s", name)
		}
		return sim, nil
	}
	if attributes, ok := source.Attributes[name]; ok {
		return NewJaccard(attributes), nil
	}
	return nil, errors.NotFoundf("similarity criterion %s", name)
}

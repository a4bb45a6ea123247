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
	"math"

	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/juju/errors"
)

const (
	Pearson       = "pearson"
	Cosine        = "cosine"
	Euclidean     = "euclidean"
	Tanimoto      = "tanimoto"
	LogLikelihood = "loglikelihood"
)

// vectors holds the rating vector of each entity: the ratings of a user keyed by
// item, or the ratings of an item keyed by user.
type vectors struct {
	data map[int64]map[int64]float64
	dims int
}

func newVectors(source Source) (*vectors, error) {
	if source.Ratings == nil {
		return nil, errors.NotValidf("rating based similarity without ratings")
	}
	v := &vectors{data: make(map[int64]map[int64]float64)}
	var prefs func(int64) (dataset.Preferences, error)
	var ids []int64
	switch source.Kind {
	case Items:
		ids, prefs = source.Ratings.ItemIDs(), source.Ratings.PreferencesForItem
		v.dims = source.Ratings.NumUsers()
	case Users, "":
		ids, prefs = source.Ratings.UserIDs(), source.Ratings.PreferencesOfUser
		v.dims = source.Ratings.NumItems()
	default:
		return nil, errors.NotValidf("entity kind %s", source.Kind)
	}
	for _, id := range ids {
		list, err := prefs(id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		vector := make(map[int64]float64, len(list))
		for _, pref := range list {
			if source.Kind == Items {
				vector[pref.UserId] = float64(pref.Value)
			} else {
				vector[pref.ItemId] = float64(pref.Value)
			}
		}
		v.data[id] = vector
	}
	return v, nil
}

func (v *vectors) pair(a, b int64) (map[int64]float64, map[int64]float64, error) {
	x, ok := v.data[a]
	if !ok {
		return nil, nil, errors.NotFoundf("entity %d", a)
	}
	y, ok := v.data[b]
	if !ok {
		return nil, nil, errors.NotFoundf("entity %d", b)
	}
	if len(x) > len(y) {
		return y, x, nil
	}
	return x, y, nil
}

func (v *vectors) forIntersection(a, b int64, f func(x, y float64)) (int, int, int, error) {
	x, y, err := v.pair(a, b)
	if err != nil {
		return 0, 0, 0, err
	}
	common := 0
	for k, vx := range x {
		if vy, ok := y[k]; ok {
			common++
			f(vx, vy)
		}
	}
	return common, len(v.data[a]), len(v.data[b]), nil
}

type pearson struct{ *vectors }

// NewPearson creates the Pearson correlation over co-rated dimensions.
func NewPearson(source Source) (Similarity, error) {
	v, err := newVectors(source)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &pearson{v}, nil
}

func (p *pearson) Similarity(a, b int64) (float64, error) {
	var sumX, sumY, sumXX, sumYY, sumXY float64
	n, _, _, err := p.forIntersection(a, b, func(x, y float64) {
		sumX += x
		sumY += y
		sumXX += x * x
		sumYY += y * y
		sumXY += x * y
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	if n == 0 {
		return math.NaN(), nil
	}
	count := float64(n)
	centeredXY := sumXY - sumX*sumY/count
	centeredXX := sumXX - sumX*sumX/count
	centeredYY := sumYY - sumY*sumY/count
	denominator := math.Sqrt(centeredXX) * math.Sqrt(centeredYY)
	if denominator == 0 {
		return math.NaN(), nil
	}
	return centeredXY / denominator, nil
}

type cosine struct{ *vectors }

// NewCosine creates the uncentered cosine similarity over co-rated dimensions.
func NewCosine(source Source) (Similarity, error) {
	v, err := newVectors(source)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &cosine{v}, nil
}

func (c *cosine) Similarity(a, b int64) (float64, error) {
	var m, n, l float64
	common, _, _, err := c.forIntersection(a, b, func(x, y float64) {
		m += x * x
		n += y * y
		l += x * y
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	if common == 0 || m == 0 || n == 0 {
		return math.NaN(), nil
	}
	return l / (math.Sqrt(m) * math.Sqrt(n)), nil
}

type euclidean struct{ *vectors }

// NewEuclidean creates 1/(1+d) where d is the Euclidean distance over co-rated
// dimensions.
func NewEuclidean(source Source) (Similarity, error) {
	v, err := newVectors(source)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &euclidean{v}, nil
}

func (e *euclidean) Similarity(a, b int64) (float64, error) {
	var sum float64
	common, _, _, err := e.forIntersection(a, b, func(x, y float64) {
		sum += (x - y) * (x - y)
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	if common == 0 {
		return math.NaN(), nil
	}
	return 1 / (1 + math.Sqrt(sum)), nil
}

type tanimoto struct{ *vectors }

// NewTanimoto creates the Tanimoto coefficient of rated dimensions, ignoring values.
func NewTanimoto(source Source) (Similarity, error) {
	v, err := newVectors(source)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &tanimoto{v}, nil
}

func (t *tanimoto) Similarity(a, b int64) (float64, error) {
	common, lenA, lenB, err := t.forIntersection(a, b, func(_, _ float64) {})
	if err != nil {
		return 0, errors.Trace(err)
	}
	union := lenA + lenB - common
	if union == 0 {
		return math.NaN(), nil
	}
	return float64(common) / float64(union), nil
}

type logLikelihood struct{ *vectors }

// NewLogLikelihood creates 1-1/(1+LLR) where LLR is the log-likelihood ratio of
// co-occurrence of rated dimensions.
func NewLogLikelihood(source Source) (Similarity, error) {
	v, err := newVectors(source)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &logLikelihood{v}, nil
}

func (l *logLikelihood) Similarity(a, b int64) (float64, error) {
	common, lenA, lenB, err := l.forIntersection(a, b, func(_, _ float64) {})
	if err != nil {
		return 0, errors.Trace(err)
	}
	if common == 0 {
		return math.NaN(), nil
	}
	k11 := float64(common)
	k12 := float64(lenA - common)
	k21 := float64(lenB - common)
	k22 := float64(l.dims - lenA - lenB + common)
	ratio := logLikelihoodRatio(k11, k12, k21, k22)
	return 1 - 1/(1+ratio), nil
}

func logLikelihoodRatio(k11, k12, k21, k22 float64) float64 {
	rowEntropy := entropy(k11+k12, k21+k22)
	columnEntropy := entropy(k11+k21, k12+k22)
	matrixEntropy := entropy(k11, k12, k21, k22)
	if rowEntropy+columnEntropy < matrixEntropy {
		// round off error
		return 0
	}
	return 2 * (rowEntropy + columnEntropy - matrixEntropy)
}

func entropy(elements ...float64) float64 {
	var sum, result float64
	for _, x := range elements {
		result += xLogX(x)
		sum += x
	}
	return xLogX(sum) - result
}

func xLogX(x float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(x)
}

// Jaccard is the Jaccard index of categorical attribute sets. Entities without
// attributes have zero similarity to everything else.
type Jaccard struct {
	attributes *dataset.Attributes
}

func NewJaccard(attributes *dataset.Attributes) *Jaccard {
	return &Jaccard{attributes: attributes}
}

func (j *Jaccard) Similarity(a, b int64) (float64, error) {
	x, y := j.attributes.Get(a), j.attributes.Get(b)
	if x == nil || y == nil {
		return 0, nil
	}
	union := x.Union(y).Cardinality()
	if union == 0 {
		return 0, nil
	}
	return float64(x.Intersect(y).Cardinality()) / float64(union), nil
}

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
	"math"
	"slices"

	"github.com/gorse-io/gorse-eval/base"
	"github.com/gorse-io/gorse-eval/dataset"
	"github.com/juju/errors"
)

type SplitMode string

const (
	RandomSplit     SplitMode = "random"
	StratifiedSplit SplitMode = "stratified"
)

// MinTestPreferences is the minimal number of ratings a user needs to contribute test
// material.
const MinTestPreferences = 2

// Splitter partitions the preferences of one user into train and test sets, or into
// folds. It never fails on valid input and is safe for concurrent use, although
// evaluators draw all randomness on a single goroutine.
type Splitter struct {
	mode    SplitMode
	ranking map[int64]int
}

// NewSplitter creates a splitter. The stratified mode requires a popularity ranking,
// most popular first.
func NewSplitter(mode SplitMode, ranking []int64) (*Splitter, error) {
	s := &Splitter{mode: mode}
	switch mode {
	case RandomSplit:
	case StratifiedSplit:
		if len(ranking) == 0 {
			return nil, errors.NotValidf("stratified split without popularity ranking")
		}
		s.ranking = make(map[int64]int, len(ranking))
		for i, itemId := range ranking {
			if _, exist := s.ranking[itemId]; !exist {
				s.ranking[itemId] = i
			}
		}
	default:
		return nil, errors.NotValidf("split mode %s", mode)
	}
	return s, nil
}

func (s *Splitter) Mode() SplitMode {
	return s.mode
}

// order returns a copy of prefs in the order folds are assigned: shuffled for the
// random mode, by popularity for the stratified mode. Items missing from the ranking
// keep their relative order after ranked items.
func (s *Splitter) order(prefs dataset.Preferences, rng base.RandomGenerator) dataset.Preferences {
	ordered := slices.Clone(prefs)
	if s.mode == StratifiedSplit {
		slices.SortStableFunc(ordered, func(a, b dataset.Preference) int {
			return s.rank(a.ItemId) - s.rank(b.ItemId)
		})
	} else {
		base.Shuffle(rng, ordered)
	}
	return ordered
}

func (s *Splitter) rank(itemId int64) int {
	if rank, ok := s.ranking[itemId]; ok {
		return rank
	}
	return math.MaxInt32
}

// HoldOut splits prefs into train and test sets. Users with less than two ratings
// keep all of them in train. A stratified split alternates only the leading
// min(2*pairs, n) ranked ratings, so at most half of n, rounded up, is held out.
func (s *Splitter) HoldOut(prefs dataset.Preferences, trainFraction float64, rng base.RandomGenerator) (train, test dataset.Preferences) {
	if len(prefs) < MinTestPreferences {
		return slices.Clone(prefs), nil
	}
	ordered := s.order(prefs, rng)
	if s.mode == RandomSplit {
		numTrain := int(math.Round(float64(len(ordered)) * trainFraction))
		return ordered[:numTrain:numTrain], ordered[numTrain:]
	}
	// Leading pairs of ranked items alternate between train and test.
	pairs := int(math.Round(float64(len(ordered)) * (1 - trainFraction)))
	paired := min(2*pairs, len(ordered))
	parity := rng.Intn(2)
	for i, pref := range ordered {
		if i < paired && (i+parity)%2 == 1 {
			test = append(test, pref)
		} else {
			train = append(train, pref)
		}
	}
	return train, test
}

// KFold assigns prefs to k folds. It returns nil for users with less than two ratings;
// those belong to the training set of every fold.
func (s *Splitter) KFold(prefs dataset.Preferences, k int, rng base.RandomGenerator) []dataset.Preferences {
	if len(prefs) < MinTestPreferences {
		return nil
	}
	ordered := s.order(prefs, rng)
	start := 0
	if s.mode == StratifiedSplit {
		start = rng.Intn(k)
	}
	folds := make([]dataset.Preferences, k)
	for i, pref := range ordered {
		fold := (start + i) % k
		folds[fold] = append(folds[fold], pref)
	}
	return folds
}

// Copyright 2025 gorse Project Authors
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
	"maps"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Preference is a rating of an item given by a user.
type Preference struct {
	UserId int64
	ItemId int64
	Value  float32
}

// Preferences is the ordered list of preferences of one user (or one item).
type Preferences []Preference

// ItemIDs returns item ids in list order.
func (p Preferences) ItemIDs() []int64 {
	return lo.Map(p, func(pref Preference, _ int) int64 {
		return pref.ItemId
	})
}

// Values returns rating values in list order.
func (p Preferences) Values() []float64 {
	return lo.Map(p, func(pref Preference, _ int) float64 {
		return float64(pref.Value)
	})
}

// DataModel is an immutable in-memory rating store. It is safe for concurrent reads.
type DataModel struct {
	userIDs []int64
	itemIDs []int64
	users   map[int64]Preferences
	items   map[int64]Preferences
	ratings map[int64]map[int64]float32
}

// NewDataModel builds a rating store from preference lists keyed by user id. Users
// without preferences are dropped. The lists are copied. A repeated item of a user
// is kept once with the last value.
func NewDataModel(users map[int64]Preferences) *DataModel {
	m := &DataModel{
		users:   make(map[int64]Preferences, len(users)),
		items:   make(map[int64]Preferences),
		ratings: make(map[int64]map[int64]float32, len(users)),
	}
	for userId, prefs := range users {
		if len(prefs) == 0 {
			continue
		}
		ratings := make(map[int64]float32, len(prefs))
		for _, pref := range prefs {
			ratings[pref.ItemId] = pref.Value
		}
		// a repeated item keeps its first position and its last value
		copied := make(Preferences, 0, len(ratings))
		seen := mapset.NewThreadUnsafeSetWithSize[int64](len(ratings))
		for _, pref := range prefs {
			if !seen.Contains(pref.ItemId) {
				seen.Add(pref.ItemId)
				copied = append(copied, Preference{UserId: userId, ItemId: pref.ItemId, Value: ratings[pref.ItemId]})
			}
		}
		m.users[userId] = copied
		m.ratings[userId] = ratings
	}
	m.userIDs = slices.Sorted(maps.Keys(m.users))
	for _, userId := range m.userIDs {
		for _, pref := range m.users[userId] {
			m.items[pref.ItemId] = append(m.items[pref.ItemId], pref)
		}
	}
	m.itemIDs = slices.Sorted(maps.Keys(m.items))
	return m
}

// UserIDs returns user ids in ascending order. The slice must not be modified.
func (m *DataModel) UserIDs() []int64 {
	return m.userIDs
}

// ItemIDs returns item ids in ascending order. The slice must not be modified.
func (m *DataModel) ItemIDs() []int64 {
	return m.itemIDs
}

func (m *DataModel) NumUsers() int {
	return len(m.userIDs)
}

func (m *DataModel) NumItems() int {
	return len(m.itemIDs)
}

// NumPreferences returns the total number of ratings.
func (m *DataModel) NumPreferences() int {
	n := 0
	for _, prefs := range m.users {
		n += len(prefs)
	}
	return n
}

func (m *DataModel) HasUser(userId int64) bool {
	_, ok := m.users[userId]
	return ok
}

func (m *DataModel) HasItem(itemId int64) bool {
	_, ok := m.items[itemId]
	return ok
}

// PreferencesOfUser returns the preferences of a user in storage order.
func (m *DataModel) PreferencesOfUser(userId int64) (Preferences, error) {
	prefs, ok := m.users[userId]
	if !ok {
		return nil, errors.NotFoundf("user %d", userId)
	}
	return prefs, nil
}

// PreferencesForItem returns the preferences for an item ordered by user id.
func (m *DataModel) PreferencesForItem(itemId int64) (Preferences, error) {
	prefs, ok := m.items[itemId]
	if !ok {
		return nil, errors.NotFoundf("item %d", itemId)
	}
	return prefs, nil
}

// PreferenceValue returns the rating of a user for an item.
func (m *DataModel) PreferenceValue(userId, itemId int64) (float32, bool) {
	ratings, ok := m.ratings[userId]
	if !ok {
		return 0, false
	}
	value, ok := ratings[itemId]
	return value, ok
}

// Without returns a rating store in which the user has no preferences for the given
// items. Other users share their lists with the receiver. The user is removed if no
// preference remains.
func (m *DataModel) Without(userId int64, items mapset.Set[int64]) *DataModel {
	prefs, ok := m.users[userId]
	if !ok || items.Cardinality() == 0 {
		return m
	}
	remain := lo.Filter(prefs, func(pref Preference, _ int) bool {
		return !items.Contains(pref.ItemId)
	})
	if len(remain) == len(prefs) {
		return m
	}

	n := &DataModel{
		users:   maps.Clone(m.users),
		items:   maps.Clone(m.items),
		ratings: maps.Clone(m.ratings),
		userIDs: m.userIDs,
		itemIDs: m.itemIDs,
	}
	if len(remain) == 0 {
		delete(n.users, userId)
		delete(n.ratings, userId)
		n.userIDs = lo.Without(m.userIDs, userId)
	} else {
		n.users[userId] = remain
		ratings := make(map[int64]float32, len(remain))
		for _, pref := range remain {
			ratings[pref.ItemId] = pref.Value
		}
		n.ratings[userId] = ratings
	}
	removedItems := false
	for _, pref := range prefs {
		if !items.Contains(pref.ItemId) {
			continue
		}
		others := lo.Filter(m.items[pref.ItemId], func(p Preference, _ int) bool {
			return p.UserId != userId
		})
		if len(others) == 0 {
			delete(n.items, pref.ItemId)
			removedItems = true
		} else {
			n.items[pref.ItemId] = others
		}
	}
	if removedItems {
		n.itemIDs = lo.Filter(m.itemIDs, func(itemId int64, _ int) bool {
			_, ok := n.items[itemId]
			return ok
		})
	}
	return n
}

// Builder accumulates ratings before building a DataModel.
type Builder struct {
	users map[int64]Preferences
}

func NewBuilder() *Builder {
	return &Builder{users: make(map[int64]Preferences)}
}

func (b *Builder) Add(userId, itemId int64, value float32) {
	b.users[userId] = append(b.users[userId], Preference{UserId: userId, ItemId: itemId, Value: value})
}

func (b *Builder) Build() *DataModel {
	return NewDataModel(b.users)
}

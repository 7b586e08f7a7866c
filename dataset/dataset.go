// Copyright 2024 gorse Project Authors
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
	"sort"

	"github.com/samber/lo"
)

// Rating is an observed interaction between dense user and item indices.
type Rating struct {
	User   int32
	Item   int32
	Rating float32
}

// Fold is one train/test partition.
type Fold struct {
	Name          string
	UserIndex     *Index
	ItemIndex     *Index
	TrainRatings  []Rating
	UserItems     [][]int32
	ItemUsers     [][]int32
	TestRatings   []Rating
	TestUserItems map[int32][]int32
}

func (f *Fold) CountUsers() int {
	return f.UserIndex.Count()
}

func (f *Fold) CountItems() int {
	return f.ItemIndex.Count()
}

// TestUsers returns users with held-out items in ascending order.
func (f *Fold) TestUsers() []int32 {
	users := lo.Keys(f.TestUserItems)
	sort.Slice(users, func(i, j int) bool {
		return users[i] < users[j]
	})
	return users
}

// NewFold builds the per-user and per-item adjacency of the training split and the held-out
// purchased sets of the test split. Training order is kept.
func NewFold(name string, userIndex, itemIndex *Index, train, test []Rating) *Fold {
	fold := &Fold{
		Name:          name,
		UserIndex:     userIndex,
		ItemIndex:     itemIndex,
		TrainRatings:  train,
		UserItems:     make([][]int32, userIndex.Count()),
		ItemUsers:     make([][]int32, itemIndex.Count()),
		TestRatings:   test,
		TestUserItems: make(map[int32][]int32),
	}
	for _, r := range train {
		fold.UserItems[r.User] = append(fold.UserItems[r.User], r.Item)
		fold.ItemUsers[r.Item] = append(fold.ItemUsers[r.Item], r.User)
	}
	for _, r := range test {
		fold.TestUserItems[r.User] = append(fold.TestUserItems[r.User], r.Item)
	}
	return fold
}

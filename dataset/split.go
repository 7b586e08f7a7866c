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
	"encoding/csv"
	"io"

	"github.com/gorse-io/gorse-tuner/base"
	"github.com/gorse-io/gorse-tuner/base/encoding"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// RawRating is a rating keyed by raw ids.
type RawRating struct {
	User   string
	Item   string
	Rating float32
}

// LoadRatingsCSV reads "user<sep>item<sep>rating[...]" rows. Extra columns such as timestamps are ignored.
func LoadRatingsCSV(r io.Reader, sep rune, header bool) ([]RawRating, error) {
	reader := csv.NewReader(r)
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	var ratings []RawRating
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		if header && line == 1 {
			continue
		}
		if len(record) < 3 {
			return nil, errors.NotValidf("line %d has %d fields", line, len(record))
		}
		rating, err := encoding.ParseFloat32(record[2])
		if err != nil {
			return nil, errors.Annotatef(err, "line %d", line)
		}
		ratings = append(ratings, RawRating{User: record[0], Item: record[1], Rating: rating})
	}
	return ratings, nil
}

// Split indexes ratings and partitions them into folds. k = 0 produces the single split "A"
// holding testRatio of ratings out. k > 0 produces k folds "0".."k-1" whose test sets
// partition the ratings. A repeated (user, item) pair keeps its first position and last value.
func Split(raw []RawRating, k int, testRatio float64, seed int64) ([]*Fold, error) {
	if k < 0 {
		return nil, errors.NotValidf("number of folds %d", k)
	}
	if k == 0 && (testRatio <= 0 || testRatio >= 1) {
		return nil, errors.NotValidf("test ratio %v", testRatio)
	}
	userIndex, itemIndex := NewIndex(), NewIndex()
	positions := make(map[lo.Tuple2[int32, int32]]int)
	var ratings []Rating
	for _, r := range raw {
		user, item := userIndex.Add(r.User), itemIndex.Add(r.Item)
		key := lo.T2(user, item)
		if pos, exist := positions[key]; exist {
			ratings[pos].Rating = r.Rating
			continue
		}
		positions[key] = len(ratings)
		ratings = append(ratings, Rating{User: user, Item: item, Rating: r.Rating})
	}
	if k > len(ratings) {
		return nil, errors.NotValidf("%d folds of %d ratings", k, len(ratings))
	}

	rng := base.NewRandomGenerator(seed)
	perm := rng.Perm(len(ratings))
	build := func(name string, testPositions []int) *Fold {
		isTest := make([]bool, len(ratings))
		for _, pos := range testPositions {
			isTest[pos] = true
		}
		var train, test []Rating
		for pos, r := range ratings {
			if isTest[pos] {
				test = append(test, r)
			} else {
				train = append(train, r)
			}
		}
		return NewFold(name, userIndex, itemIndex, train, test)
	}

	if k == 0 {
		testSize := int(float64(len(ratings)) * testRatio)
		return []*Fold{build(SplitName, perm[:testSize])}, nil
	}
	folds := make([]*Fold, k)
	foldSize := len(ratings) / k
	begin, end := 0, 0
	for i := 0; i < k; i++ {
		end += foldSize
		if i < len(ratings)%k {
			end++
		}
		folds[i] = build(FoldName(i), perm[begin:end])
		begin = end
	}
	return folds, nil
}

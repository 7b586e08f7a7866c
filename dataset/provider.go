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
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"path"
	"strconv"

	"github.com/gorse-io/gorse-tuner/base/encoding"
	"github.com/gorse-io/gorse-tuner/base/log"
	"github.com/gorse-io/gorse-tuner/storage/blob"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SplitName is the fold directory used without cross-validation.
const SplitName = "A"

const (
	UserIndexFile     = "user_index.csv"
	ItemIndexFile     = "item_index.csv"
	TrainFile         = "train.csv"
	UserItemsFile     = "train_user_items.gob"
	ItemUsersFile     = "train_item_users.gob"
	TestRatingsFile   = "test_ratings.gob"
	TestUserItemsFile = "test_user_items.gob"
)

// FoldName returns the directory of the i-th fold.
func FoldName(i int) string {
	return strconv.Itoa(i)
}

// Provider supplies prepared folds.
type Provider interface {
	Load(ctx context.Context, name string) (*Fold, error)
}

// IsMissingArtifact reports whether err was caused by an absent or corrupt fold file.
func IsMissingArtifact(err error) bool {
	return errors.Is(err, errors.NotFound)
}

// StoreProvider reads folds from a blob store. Artifacts of a fold are loaded concurrently.
type StoreProvider struct {
	Store blob.Store
}

func NewStoreProvider(store blob.Store) *StoreProvider {
	return &StoreProvider{Store: store}
}

func (p *StoreProvider) Load(ctx context.Context, name string) (*Fold, error) {
	fold := &Fold{Name: name}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		fold.UserIndex, err = readArtifact(ctx, p.Store, name, UserIndexFile, ReadIndexCSV)
		return
	})
	g.Go(func() (err error) {
		fold.ItemIndex, err = readArtifact(ctx, p.Store, name, ItemIndexFile, ReadIndexCSV)
		return
	})
	g.Go(func() (err error) {
		fold.TrainRatings, err = readArtifact(ctx, p.Store, name, TrainFile, ReadRatingsCSV)
		return
	})
	g.Go(func() (err error) {
		fold.UserItems, err = readArtifact(ctx, p.Store, name, UserItemsFile, readGob[[][]int32])
		return
	})
	g.Go(func() (err error) {
		fold.ItemUsers, err = readArtifact(ctx, p.Store, name, ItemUsersFile, readGob[[][]int32])
		return
	})
	g.Go(func() (err error) {
		fold.TestRatings, err = readArtifact(ctx, p.Store, name, TestRatingsFile, readGob[[]Rating])
		return
	})
	g.Go(func() (err error) {
		fold.TestUserItems, err = readArtifact(ctx, p.Store, name, TestUserItemsFile, readGob[map[int32][]int32])
		return
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := fold.validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if fold.TestUserItems == nil {
		fold.TestUserItems = make(map[int32][]int32)
	}
	log.Logger().Debug("load fold",
		zap.String("fold", name),
		zap.Int("n_users", fold.CountUsers()),
		zap.Int("n_items", fold.CountItems()),
		zap.Int("n_train", len(fold.TrainRatings)),
		zap.Int("n_test", len(fold.TestRatings)))
	return fold, nil
}

func readArtifact[T any](ctx context.Context, store blob.Store, dir, file string, decode func(io.Reader) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, errors.Trace(err)
	}
	name := path.Join(dir, file)
	r, err := store.Open(name)
	if err != nil {
		return zero, errors.NewNotFound(err, "missing artifact "+name)
	}
	defer r.Close()
	v, err := decode(r)
	if err != nil {
		return zero, errors.NewNotFound(err, "corrupt artifact "+name)
	}
	return v, nil
}

func readGob[T any](r io.Reader) (T, error) {
	var v T
	err := encoding.ReadGob(r, &v)
	return v, err
}

func (f *Fold) validate() error {
	nUsers, nItems := int32(f.CountUsers()), int32(f.CountItems())
	if len(f.UserItems) != int(nUsers) {
		return errors.NotFoundf("corrupt artifact %s: %d users in %s", path.Join(f.Name, UserItemsFile), len(f.UserItems), UserIndexFile)
	}
	if len(f.ItemUsers) != int(nItems) {
		return errors.NotFoundf("corrupt artifact %s: %d items in %s", path.Join(f.Name, ItemUsersFile), len(f.ItemUsers), ItemIndexFile)
	}
	check := func(file string, ratings []Rating) error {
		for _, r := range ratings {
			if r.User < 0 || r.User >= nUsers || r.Item < 0 || r.Item >= nItems {
				return errors.NotFoundf("corrupt artifact %s: rating (%d, %d)", path.Join(f.Name, file), r.User, r.Item)
			}
		}
		return nil
	}
	if err := check(TrainFile, f.TrainRatings); err != nil {
		return err
	}
	return check(TestRatingsFile, f.TestRatings)
}

// ReadRatingsCSV reads "user,item,rating" rows of dense indices.
func ReadRatingsCSV(r io.Reader) ([]Rating, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.ReuseRecord = true
	if _, err := reader.Read(); err != nil {
		return nil, errors.Annotate(err, "missing header")
	}
	var ratings []Rating
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		user, err := strconv.ParseInt(record[0], 10, 32)
		if err != nil {
			return nil, errors.Trace(err)
		}
		item, err := strconv.ParseInt(record[1], 10, 32)
		if err != nil {
			return nil, errors.Trace(err)
		}
		rating, err := encoding.ParseFloat32(record[2])
		if err != nil {
			return nil, errors.Trace(err)
		}
		ratings = append(ratings, Rating{User: int32(user), Item: int32(item), Rating: rating})
	}
	return ratings, nil
}

// WriteRatingsCSV writes ratings in order with a "user,item,rating" header.
func WriteRatingsCSV(w io.Writer, ratings []Rating) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"user", "item", "rating"}); err != nil {
		return errors.Trace(err)
	}
	for _, r := range ratings {
		if err := writer.Write([]string{
			strconv.Itoa(int(r.User)),
			strconv.Itoa(int(r.Item)),
			encoding.FormatFloat32(r.Rating),
		}); err != nil {
			return errors.Trace(err)
		}
	}
	writer.Flush()
	return errors.Trace(writer.Error())
}

// WriteFold writes every artifact of a fold under its name.
func WriteFold(store blob.Store, fold *Fold) error {
	artifacts := []struct {
		file   string
		encode func(w io.Writer) error
	}{
		{UserIndexFile, fold.UserIndex.WriteCSV},
		{ItemIndexFile, fold.ItemIndex.WriteCSV},
		{TrainFile, func(w io.Writer) error { return WriteRatingsCSV(w, fold.TrainRatings) }},
		{UserItemsFile, func(w io.Writer) error { return encoding.WriteGob(w, fold.UserItems) }},
		{ItemUsersFile, func(w io.Writer) error { return encoding.WriteGob(w, fold.ItemUsers) }},
		{TestRatingsFile, func(w io.Writer) error { return encoding.WriteGob(w, fold.TestRatings) }},
		{TestUserItemsFile, func(w io.Writer) error { return encoding.WriteGob(w, fold.TestUserItems) }},
	}
	for _, artifact := range artifacts {
		var buf bytes.Buffer
		if err := artifact.encode(&buf); err != nil {
			return errors.Trace(err)
		}
		if err := blob.WriteAll(store, path.Join(fold.Name, artifact.file), buf.Bytes()); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

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

package cf

import (
	"context"
	"encoding/csv"
	"io"
	"path"
	"strconv"

	"github.com/gorse-io/gorse-tuner/base/encoding"
	"github.com/juju/errors"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const (
	GlobalMeanFile    = "mu.csv"
	UserBiasFile      = "bu.csv"
	ItemBiasFile      = "bi.csv"
	UserFactorFile    = "pu.csv"
	ItemFactorFile    = "qi.csv"
	UserRecommendFile = "user_recommend.csv"
	compressedFileExt = ".gz"
)

// Save writes mu, biases, factors and the recommendations of the last Score as CSV tables.
func (m *BiasedMF) Save(ctx context.Context) error {
	if m.opts.Results == nil {
		return errors.NotValidf("results store of %s", m.name)
	}
	tables := []struct {
		name  string
		write func(w *csv.Writer) error
	}{
		{GlobalMeanFile, func(w *csv.Writer) error {
			return writeRows(w, []string{"mu"}, [][]string{{encoding.FormatFloat32(m.GlobalMean)}})
		}},
		{UserBiasFile, func(w *csv.Writer) error { return writeVector(w, m.UserBias) }},
		{ItemBiasFile, func(w *csv.Writer) error { return writeVector(w, m.ItemBias) }},
		{UserFactorFile, func(w *csv.Writer) error { return writeMatrix(w, m.UserFactor) }},
		{ItemFactorFile, func(w *csv.Writer) error { return writeMatrix(w, m.ItemFactor) }},
		{UserRecommendFile, m.writeRecommendations},
	}
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		name := path.Join(m.opts.Prefix, table.name)
		if m.opts.Compress {
			name += compressedFileExt
		}
		if err := m.saveTable(name, table.write); err != nil {
			return errors.Annotatef(err, "save %s", name)
		}
	}
	m.logger.Info("save "+m.name, zap.String("prefix", m.opts.Prefix), zap.Bool("compress", m.opts.Compress))
	return nil
}

func (m *BiasedMF) saveTable(name string, write func(w *csv.Writer) error) error {
	w, done, err := m.opts.Results.Create(name)
	if err != nil {
		return errors.Trace(err)
	}
	var (
		sink io.Writer = w
		zw   *gzip.Writer
	)
	if m.opts.Compress {
		zw = gzip.NewWriter(w)
		sink = zw
	}
	err = write(csv.NewWriter(sink))
	if zw != nil {
		if closeErr := zw.Close(); err == nil {
			err = closeErr
		}
	}
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	<-done
	return errors.Trace(err)
}

func (m *BiasedMF) writeRecommendations(w *csv.Writer) error {
	var rows [][]string
	for _, rec := range m.recommendations {
		for rank, item := range rec.Items {
			rows = append(rows, []string{
				strconv.Itoa(int(rec.User)),
				strconv.Itoa(rank),
				strconv.Itoa(int(item)),
			})
		}
	}
	return writeRows(w, []string{"user", "rank", "item"}, rows)
}

func writeVector(w *csv.Writer, v []float32) error {
	rows := make([][]string, len(v))
	for i := range v {
		rows[i] = []string{strconv.Itoa(i), encoding.FormatFloat32(v[i])}
	}
	return writeRows(w, []string{"index", "value"}, rows)
}

func writeMatrix(w *csv.Writer, m [][]float32) error {
	var header []string
	if len(m) > 0 {
		header = make([]string, len(m[0])+1)
		header[0] = "index"
		for j := range m[0] {
			header[j+1] = "f" + strconv.Itoa(j)
		}
	}
	rows := make([][]string, len(m))
	for i := range m {
		rows[i] = make([]string, len(m[i])+1)
		rows[i][0] = strconv.Itoa(i)
		for j := range m[i] {
			rows[i][j+1] = encoding.FormatFloat32(m[i][j])
		}
	}
	return writeRows(w, header, rows)
}

func writeRows(w *csv.Writer, header []string, rows [][]string) error {
	if header != nil {
		if err := w.Write(header); err != nil {
			return errors.Trace(err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.Trace(err)
	}
	return nil
}

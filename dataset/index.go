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
	"strconv"

	"github.com/juju/errors"
)

// Index maps raw ids to dense indices in insertion order and counts occurrences.
type Index struct {
	si  map[string]int32
	is  []string
	cnt []int
}

func NewIndex() *Index {
	return &Index{si: map[string]int32{}}
}

func (d *Index) Count() int {
	return len(d.is)
}

// Add returns the index of s, assigning the next index if s is new, and counts it.
func (d *Index) Add(s string) int32 {
	if y, ok := d.si[s]; ok {
		d.cnt[y]++
		return y
	}
	y := int32(len(d.is))
	d.si[s] = y
	d.is = append(d.is, s)
	d.cnt = append(d.cnt, 1)
	return y
}

// Id returns the index of s without counting.
func (d *Index) Id(s string) (int32, bool) {
	y, ok := d.si[s]
	return y, ok
}

func (d *Index) String(id int32) (string, bool) {
	if id < 0 || int(id) >= len(d.is) {
		return "", false
	}
	return d.is[id], true
}

func (d *Index) Freq(id int32) int {
	if id < 0 || int(id) >= len(d.cnt) {
		return 0
	}
	return d.cnt[id]
}

func (d *Index) Names() []string {
	return d.is
}

// WriteCSV writes "id,index" rows in index order.
func (d *Index) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "index"}); err != nil {
		return errors.Trace(err)
	}
	for i, s := range d.is {
		if err := writer.Write([]string{s, strconv.Itoa(i)}); err != nil {
			return errors.Trace(err)
		}
	}
	writer.Flush()
	return errors.Trace(writer.Error())
}

// ReadIndexCSV reads rows written by WriteCSV. Indices must be dense and in order.
func ReadIndexCSV(r io.Reader) (*Index, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(records) == 0 {
		return nil, errors.New("missing header")
	}
	d := NewIndex()
	for i, record := range records[1:] {
		index, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, errors.Trace(err)
		}
		if index != i {
			return nil, errors.Errorf("index of %s is %d, expect %d", record[0], index, i)
		}
		if _, exist := d.si[record[0]]; exist {
			return nil, errors.Errorf("duplicate id %s", record[0])
		}
		d.si[record[0]] = int32(i)
		d.is = append(d.is, record[0])
		d.cnt = append(d.cnt, 0)
	}
	return d, nil
}

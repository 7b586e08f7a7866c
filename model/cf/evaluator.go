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
	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/gorse-tuner/common/floats"
	"github.com/juju/errors"
)

// RMSE is the root of mean squared differences. Empty input yields zero.
func RMSE(predicted, truth []float32) (float32, error) {
	if len(predicted) != len(truth) {
		return 0, errors.NotValidf("size mismatch: %d predictions, %d ratings", len(predicted), len(truth))
	}
	if len(predicted) == 0 {
		return 0, nil
	}
	var sum float32
	for i := range predicted {
		d := predicted[i] - truth[i]
		sum += d * d
	}
	return math32.Sqrt(sum / float32(len(predicted))), nil
}

func hits(rec []int32, truth mapset.Set[int32]) int {
	count := 0
	for _, item := range rec {
		if truth.Contains(item) {
			count++
		}
	}
	return count
}

// Precision is the number of hits divided by the list length n.
func Precision(rec []int32, truth mapset.Set[int32], n int) float32 {
	if n <= 0 {
		return 0
	}
	return float32(hits(rec, truth)) / float32(n)
}

// Recall is the number of hits divided by the number of relevant items.
func Recall(rec []int32, truth mapset.Set[int32]) float32 {
	if truth.Cardinality() == 0 {
		return 0
	}
	return float32(hits(rec, truth)) / float32(truth.Cardinality())
}

// FMeasure is the harmonic mean of precision and recall.
func FMeasure(precision, recall float32) float32 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * precision * recall / (precision + recall)
}

// HR is one if any recommended item is relevant.
func HR(rec []int32, truth mapset.Set[int32]) float32 {
	if hits(rec, truth) > 0 {
		return 1
	}
	return 0
}

// NDCG uses binary relevance. The ideal list ranks min(|truth|, n) relevant items first.
func NDCG(rec []int32, truth mapset.Set[int32], n int) float32 {
	var idcg float32
	for i := 0; i < truth.Cardinality() && i < n; i++ {
		idcg += 1 / math32.Log2(float32(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	var dcg float32
	for i, item := range rec {
		if i >= n {
			break
		}
		if truth.Contains(item) {
			dcg += 1 / math32.Log2(float32(i)+2)
		}
	}
	return dcg / idcg
}

// Evaluation holds macro averages over users and the per-user arrays they came from.
type Evaluation struct {
	F1        float32
	HitRatio  float32
	NDCG      float32
	Precision []float32
	Recall    []float32
	FMeasure  []float32
}

// EvalAll evaluates top-n lists against held-out items, user by user.
func EvalAll(recommended, truth [][]int32, n int) Evaluation {
	if len(recommended) != len(truth) {
		panic("cf: number of recommendation lists does not match number of users")
	}
	e := Evaluation{
		Precision: make([]float32, len(truth)),
		Recall:    make([]float32, len(truth)),
		FMeasure:  make([]float32, len(truth)),
	}
	hr := make([]float32, len(truth))
	ndcg := make([]float32, len(truth))
	for i := range truth {
		truthSet := mapset.NewThreadUnsafeSet(truth[i]...)
		e.Precision[i] = Precision(recommended[i], truthSet, n)
		e.Recall[i] = Recall(recommended[i], truthSet)
		e.FMeasure[i] = FMeasure(e.Precision[i], e.Recall[i])
		hr[i] = HR(recommended[i], truthSet)
		ndcg[i] = NDCG(recommended[i], truthSet, n)
	}
	e.F1 = floats.Mean(e.FMeasure)
	e.HitRatio = floats.Mean(hr)
	e.NDCG = floats.Mean(ndcg)
	return e
}

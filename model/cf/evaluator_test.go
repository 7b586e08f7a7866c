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
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/gorse-tuner/base"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestRMSE(t *testing.T) {
	x := []float32{1, 2.5, 3, 4.2, 5}
	rmse, err := RMSE(x, x)
	assert.NoError(t, err)
	assert.Zero(t, rmse)

	rmse, err = RMSE([]float32{1, 2, 3, 4}, []float32{2, 2, 3, 2})
	assert.NoError(t, err)
	assert.InDelta(t, 1.118034, rmse, 1e-6)

	rmse, err = RMSE(nil, nil)
	assert.NoError(t, err)
	assert.Zero(t, rmse)

	_, err = RMSE([]float32{1}, []float32{1, 2})
	assert.True(t, errors.Is(err, errors.NotValid))

	rng := base.NewRandomGenerator(0)
	for i := 0; i < 100; i++ {
		a, b := rng.UniformVector(10, -5, 5), rng.UniformVector(10, -5, 5)
		rmse, err = RMSE(a, b)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, rmse, float32(0))
	}
}

func TestRankingMetrics(t *testing.T) {
	truth := mapset.NewSet[int32](1, 3, 5, 7)
	rec := []int32{1, 2, 3, 4, 5}
	assert.Equal(t, float32(3)/5, Precision(rec, truth, 5))
	assert.Equal(t, float32(3)/10, Precision(rec, truth, 10))
	assert.Equal(t, float32(3)/4, Recall(rec, truth))
	assert.InDelta(t, 2*0.6*0.75/(0.6+0.75), FMeasure(0.6, 0.75), 1e-6)
	assert.Equal(t, float32(1), HR(rec, truth))
	assert.Equal(t, float32(0), HR([]int32{2, 4}, truth))
	// DCG = 1 + 1/log2(4) + 1/log2(6), IDCG = 1 + 1/log2(3) + 1/log2(4) + 1/log2(5)
	assert.InDelta(t, 0.7366, NDCG(rec, truth, 5), 1e-4)
	assert.Equal(t, float32(1), NDCG([]int32{7, 5, 3, 1, 0}, truth, 5))

	empty := mapset.NewSet[int32]()
	assert.Zero(t, Recall(rec, empty))
	assert.Zero(t, NDCG(rec, empty, 5))
	assert.Zero(t, FMeasure(0, 0))
	assert.Zero(t, Precision(rec, truth, 0))
}

func TestEvalAll(t *testing.T) {
	e := EvalAll([][]int32{{1, 2}, {3, 4}}, [][]int32{{2}, {5, 6}}, 2)
	assert.Equal(t, []float32{0.5, 0}, e.Precision)
	assert.Equal(t, []float32{1, 0}, e.Recall)
	assert.InDelta(t, 2*0.5/1.5, e.FMeasure[0], 1e-6)
	assert.Zero(t, e.FMeasure[1])
	assert.InDelta(t, 2*0.5/1.5/2, e.F1, 1e-6)
	assert.Equal(t, float32(0.5), e.HitRatio)
	// rank 2 of one relevant item
	assert.InDelta(t, 0.63093/2, e.NDCG, 1e-4)

	// bounds on random lists
	rng := base.NewRandomGenerator(1)
	var recommended, truth [][]int32
	for u := 0; u < 50; u++ {
		rec := make([]int32, 0, 10)
		for _, i := range rng.Perm(30)[:10] {
			rec = append(rec, int32(i))
		}
		recommended = append(recommended, rec)
		var items []int32
		for _, i := range rng.Perm(30)[:rng.Intn(8)] {
			items = append(items, int32(i))
		}
		truth = append(truth, items)
	}
	e = EvalAll(recommended, truth, 10)
	for u := range truth {
		assert.LessOrEqual(t, e.Precision[u], float32(1))
		assert.LessOrEqual(t, e.Recall[u], float32(1))
		assert.GreaterOrEqual(t, e.Precision[u], float32(0))
	}
	assert.GreaterOrEqual(t, e.NDCG, float32(0))
	assert.LessOrEqual(t, e.NDCG, float32(1))
	assert.GreaterOrEqual(t, e.HitRatio, float32(0))
	assert.LessOrEqual(t, e.HitRatio, float32(1))
	truthSets := make([]mapset.Set[int32], len(truth))
	for u := range truth {
		truthSets[u] = mapset.NewSet(truth[u]...)
		hr := HR(recommended[u], truthSets[u])
		assert.Contains(t, []float32{0, 1}, hr)
		ndcg := NDCG(recommended[u], truthSets[u], 10)
		assert.GreaterOrEqual(t, ndcg, float32(0))
		assert.LessOrEqual(t, ndcg, float32(1)+1e-6)
	}

	empty := EvalAll(nil, nil, 10)
	assert.Zero(t, empty.F1)
	assert.Zero(t, empty.HitRatio)
	assert.Zero(t, empty.NDCG)
}

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

package search

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorse-io/gorse-tuner/config"
	"github.com/gorse-io/gorse-tuner/dataset"
	"github.com/gorse-io/gorse-tuner/model"
	"github.com/gorse-io/gorse-tuner/model/cf"
	"github.com/gorse-io/gorse-tuner/storage/blob"
	"github.com/gorse-io/gorse-tuner/storage/record"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	behaviorOK    = 1
	behaviorFail  = 2
	behaviorPanic = 3
)

// mockProvider returns empty folds and remembers requested names.
type mockProvider struct {
	mu    sync.Mutex
	names []string
}

func (p *mockProvider) Load(_ context.Context, name string) (*dataset.Fold, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names = append(p.names, name)
	return &dataset.Fold{Name: name}, nil
}

// mockModel scores each fold with fixed metrics. Its behavior is selected by n_factors.
type mockModel struct {
	fold     *dataset.Fold
	behavior int
	fitted   bool
	saved    bool
}

func (m *mockModel) Fit(context.Context) error {
	switch m.behavior {
	case behaviorFail:
		return errors.New("diverged")
	case behaviorPanic:
		panic("broken model")
	}
	m.fitted = true
	return nil
}

func (m *mockModel) Predict(int32, int32) float32 { return 0 }

func (m *mockModel) Recommend(int32, int) []int32 { return nil }

func (m *mockModel) Save(context.Context) error {
	m.saved = true
	return nil
}

func (m *mockModel) Score(bool) (cf.Score, error) {
	switch m.fold.Name {
	case "0":
		return cf.Score{RMSE: 1, Loss: 2, F1: 0.2, HitRatio: 0.4, NDCG: 0.6, Precision: []float32{0.1, 0.3}}, nil
	case "1":
		return cf.Score{RMSE: 3, Loss: 4, F1: 0.4, HitRatio: 0.6, NDCG: 0.8, Precision: []float32{0.4}}, nil
	default:
		return cf.Score{RMSE: 5, Loss: 6, F1: 0.1, HitRatio: 0.1, NDCG: 0.1, Precision: []float32{0.1}}, nil
	}
}

func newMockRegistry(models *[]*mockModel) *cf.Registry {
	var mu sync.Mutex
	registry := cf.NewRegistry()
	registry.Register("mock", func(fold *dataset.Fold, params model.Params, _ cf.Options) (cf.Model, error) {
		m := &mockModel{fold: fold, behavior: params.GetInt(model.NFactors, behaviorOK)}
		mu.Lock()
		*models = append(*models, m)
		mu.Unlock()
		return m, nil
	}, model.NFactors)
	return registry
}

func newMockConfig(crossFold int, factors ...interface{}) *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.General.InputPath = "input"
	cfg.General.CrossFold = crossFold
	cfg.General.Jobs = 2
	cfg.Algorithms = []string{"mock"}
	cfg.Params = map[string]map[string]interface{}{
		"mock": {"n_factors": factors},
	}
	return cfg
}

func newMockSearcher(cfg *config.Config, models *[]*mockModel) (*Searcher, *mockProvider, *bytes.Buffer) {
	provider := &mockProvider{}
	searcher := NewSearcher(cfg, newMockRegistry(models), provider, nil)
	var buf bytes.Buffer
	searcher.Log = NewCompletionLog(zap.New(newBufferCore(&buf)))
	return searcher, provider, &buf
}

func TestRunJobAveragesFolds(t *testing.T) {
	var models []*mockModel
	searcher, provider, _ := newMockSearcher(newMockConfig(2, behaviorOK), &models)
	job := Job{Algorithm: "mock", Params: model.Params{model.NFactors: behaviorOK}}
	metrics, err := searcher.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{2, 3, 0.3, 0.5, 0.7, 0.3}, metrics, 1e-6)
	assert.Equal(t, []string{"0", "1"}, provider.names)
	require.Len(t, models, 2)
	for _, m := range models {
		assert.True(t, m.fitted)
		assert.True(t, m.saved)
	}
}

func TestRunJobWithoutCrossValidation(t *testing.T) {
	var models []*mockModel
	searcher, provider, _ := newMockSearcher(newMockConfig(0, behaviorOK), &models)
	job := Job{Algorithm: "mock", Params: model.Params{model.NFactors: behaviorOK}}
	metrics, err := searcher.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{5, 6, 0.1, 0.1, 0.1, 0.1}, metrics, 1e-6)
	assert.Equal(t, []string{dataset.SplitName}, provider.names)
}

func TestRunJobCanceled(t *testing.T) {
	var models []*mockModel
	searcher, _, _ := newMockSearcher(newMockConfig(2, behaviorOK), &models)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := searcher.RunJob(ctx, Job{Algorithm: "mock", Params: model.Params{model.NFactors: behaviorOK}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, models)
}

func TestJobsGrid(t *testing.T) {
	cfg := newMockConfig(0)
	cfg.Params["mock"] = map[string]interface{}{
		"n_factors": []interface{}{int64(4), int64(8)},
		"lr":        []interface{}{0.1, 0.01, 0.001},
	}
	var models []*mockModel
	searcher, _, _ := newMockSearcher(cfg, &models)
	jobs := searcher.Jobs()
	require.Len(t, jobs, 6)
	assert.Equal(t, model.Params{model.Lr: 0.1, model.NFactors: int64(4)}, jobs[0].Params)
	assert.Equal(t, model.Params{model.Lr: 0.1, model.NFactors: int64(8)}, jobs[1].Params)
	assert.Equal(t, model.Params{model.Lr: 0.001, model.NFactors: int64(8)}, jobs[5].Params)
}

func TestJobsRandom(t *testing.T) {
	cfg := newMockConfig(0)
	cfg.General.SearchMode = config.SearchModeRandom
	cfg.General.NumTrials = 4
	cfg.Params["mock"] = map[string]interface{}{
		"n_factors": []interface{}{int64(4), int64(8), int64(16)},
		"lr":        []interface{}{0.1, 0.01, 0.001},
	}
	var models []*mockModel
	searcher, _, _ := newMockSearcher(cfg, &models)
	jobs := searcher.Jobs()
	require.Len(t, jobs, 4)
	keys := lo.Map(jobs, func(job Job, _ int) string { return job.Key() })
	assert.Len(t, lo.Uniq(keys), 4)
	// same seed, same draw
	assert.Equal(t, jobs, searcher.Jobs())

	cfg.General.NumTrials = 100
	assert.Len(t, searcher.Jobs(), 9)
}

func TestJobsSkipInvalid(t *testing.T) {
	cfg := newMockConfig(0)
	cfg.Algorithms = []string{"mock", "unknown"}
	cfg.Params["mock"] = map[string]interface{}{
		"n_factors": []interface{}{int64(4), int64(-1)},
	}
	cfg.Params["unknown"] = map[string]interface{}{
		"n_factors": int64(4),
	}
	var models []*mockModel
	searcher, _, _ := newMockSearcher(cfg, &models)
	before := testutil.ToFloat64(JobsTotal.WithLabelValues("mock", StatusInvalid))
	jobs := searcher.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(4), jobs[0].Params[model.NFactors])
	assert.Equal(t, before+1, testutil.ToFloat64(JobsTotal.WithLabelValues("mock", StatusInvalid)))
}

func TestRunIsolatesFailures(t *testing.T) {
	var models []*mockModel
	searcher, _, buf := newMockSearcher(newMockConfig(2, behaviorOK, behaviorFail, behaviorPanic), &models)
	failed := testutil.ToFloat64(JobsTotal.WithLabelValues("mock", StatusFailed))
	panicked := testutil.ToFloat64(JobsTotal.WithLabelValues("mock", StatusPanic))
	require.NoError(t, searcher.Run(context.Background()))

	records := searcher.Log.Records()
	require.Len(t, records, 3)
	byFactors := lo.SliceToMap(records, func(r Result) (int, Result) {
		return r.Job.Params.GetInt(model.NFactors, 0), r
	})
	assert.NoError(t, byFactors[behaviorOK].Err)
	assert.InDeltaSlice(t, []float32{2, 3, 0.3, 0.5, 0.7, 0.3}, byFactors[behaviorOK].Metrics, 1e-6)
	assert.ErrorContains(t, byFactors[behaviorFail].Err, "diverged")
	assert.ErrorContains(t, byFactors[behaviorPanic].Err, "broken model")

	running, finished, nFailed := searcher.Stats()
	assert.Zero(t, running)
	assert.Equal(t, int64(3), finished)
	assert.Equal(t, int64(2), nFailed)
	assert.Equal(t, failed+1, testutil.ToFloat64(JobsTotal.WithLabelValues("mock", StatusFailed)))
	assert.Equal(t, panicked+1, testutil.ToFloat64(JobsTotal.WithLabelValues("mock", StatusPanic)))

	best, ok := searcher.Log.Best()
	require.True(t, ok)
	assert.Equal(t, behaviorOK, best.Job.Params.GetInt(model.NFactors, 0))
	assert.Contains(t, buf.String(), "training end")
	assert.Contains(t, buf.String(), "job failed")

	list := searcher.Tracer.List()
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Count)
}

func TestRunWithoutJobs(t *testing.T) {
	var models []*mockModel
	searcher, _, _ := newMockSearcher(newMockConfig(0, int64(-1)), &models)
	err := searcher.Run(context.Background())
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestRunTPE(t *testing.T) {
	cfg := newMockConfig(2, behaviorOK, behaviorFail, 4, 5)
	cfg.General.SearchMode = config.SearchModeTPE
	cfg.General.NumTrials = 8
	var models []*mockModel
	searcher, _, _ := newMockSearcher(cfg, &models)
	require.NoError(t, searcher.Run(context.Background()))
	records := searcher.Log.Records()
	assert.Len(t, records, 8)
	assert.Len(t, searcher.Tracer.List(), 1)
	best, ok := searcher.Log.Best()
	require.True(t, ok)
	assert.InDelta(t, 2, best.RMSE(), 1e-6)
}

func TestSearchBiasedMF(t *testing.T) {
	var raw []dataset.RawRating
	for u := 0; u < 20; u++ {
		for i := 0; i < 20; i++ {
			if (u+i)%3 != 0 {
				raw = append(raw, dataset.RawRating{
					User:   fmt.Sprintf("u%d", u),
					Item:   fmt.Sprintf("i%d", i),
					Rating: float32(1 + (u*i)%5),
				})
			}
		}
	}
	folds, err := dataset.Split(raw, 2, 0, 1)
	require.NoError(t, err)
	input := blob.NewPOSIX(t.TempDir())
	for _, fold := range folds {
		require.NoError(t, dataset.WriteFold(input, fold))
	}
	results := blob.NewPOSIX(t.TempDir())

	cfg := config.GetDefaultConfig()
	cfg.General.InputPath = "input"
	cfg.General.CrossFold = 2
	cfg.General.Jobs = 2
	cfg.Algorithms = []string{cf.AlgBiasedMF, cf.AlgSVD}
	params := map[string]interface{}{
		"n_factors": int64(4),
		"lr":        []interface{}{0.01, 0.005},
		"user_reg":  0.1,
		"item_reg":  0.1,
		"n_epochs":  int64(3),
		"top_n":     int64(5),
	}
	cfg.Params = map[string]map[string]interface{}{cf.AlgBiasedMF: params, cf.AlgSVD: params}
	searcher := NewSearcher(cfg, cf.DefaultRegistry(), dataset.NewStoreProvider(input), results)
	searcher.Log = NewCompletionLog(zap.NewNop())
	require.NoError(t, searcher.Run(context.Background()))

	records := searcher.Log.Records()
	require.Len(t, records, 4)
	for _, r := range records {
		require.NoError(t, r.Err)
		assert.Len(t, r.Metrics, len(cf.MetricNames))
		assert.Greater(t, r.RMSE(), float32(0))
		assert.True(t, r.Elapsed > 0)
	}
	files, err := results.List()
	require.NoError(t, err)
	job := records[0].Job
	assert.Contains(t, files, job.Key()+"/0/pu.csv")
	assert.Contains(t, files, job.Key()+"/1/user_recommend.csv")
}

func TestCompletionLogConcurrentAppend(t *testing.T) {
	log := NewCompletionLog(zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Go(func() {
			log.Append(Result{
				Job:     Job{Algorithm: "mock", Params: model.Params{model.NFactors: i}},
				Metrics: []float32{float32(i + 1), 0, 0, 0, 0, 0},
				Elapsed: time.Millisecond,
			})
		})
	}
	wg.Wait()
	assert.Len(t, log.Records(), 100)
	best, ok := log.Best()
	require.True(t, ok)
	assert.Equal(t, float32(1), best.RMSE())
}

func TestCompletionLogBestSkipsFailures(t *testing.T) {
	log := NewCompletionLog(zap.NewNop())
	_, ok := log.Best()
	assert.False(t, ok)
	log.Append(Result{Job: Job{Algorithm: "mock"}, Err: errors.New("failed")})
	_, ok = log.Best()
	assert.False(t, ok)
}

func TestCompletionLogRender(t *testing.T) {
	log := NewCompletionLog(zap.NewNop())
	log.Append(Result{
		Job:     Job{Algorithm: "biased_fm", Params: model.Params{model.NFactors: 8}},
		Metrics: []float32{0.9123, 0.5, 0.1, 0.2, 0.3, 0.4},
		Elapsed: 1500 * time.Millisecond,
	})
	log.Append(Result{Job: Job{Algorithm: "svd"}, Err: errors.New("failed")})
	var buf bytes.Buffer
	require.NoError(t, log.Render(&buf))
	output := buf.String()
	assert.Contains(t, output, "biased_fm")
	assert.Contains(t, output, "0.9123")
	assert.Contains(t, output, "1.5s")
	assert.Contains(t, output, "svd")
}

type memoryRecorder struct {
	records []record.Record
}

func (r *memoryRecorder) Insert(_ context.Context, records ...record.Record) error {
	r.records = append(r.records, records...)
	return nil
}

func TestCompletionLogRecorder(t *testing.T) {
	log := NewCompletionLog(zap.NewNop())
	recorder := &memoryRecorder{}
	log.SetRecorder("run", recorder)
	log.Append(Result{
		Job:     Job{Algorithm: "svd", Params: model.Params{model.NFactors: 8}},
		Metrics: []float32{0.9, 0.5, 0.1, 0.2, 0.3, 0.4},
		Elapsed: 1500 * time.Millisecond,
	})
	log.Append(Result{Job: Job{Algorithm: "svd"}, Err: errors.New("diverged")})
	require.Len(t, recorder.records, 2)
	assert.Equal(t, "run", recorder.records[0].RunID)
	assert.Equal(t, `{"n_factors":8}`, recorder.records[0].Params)
	assert.Equal(t, float32(0.9), recorder.records[0].RMSE)
	assert.Equal(t, float32(0.4), recorder.records[0].Precision)
	assert.Equal(t, int64(1500), recorder.records[0].Elapsed)
	assert.Empty(t, recorder.records[0].Error)
	assert.Equal(t, "diverged", recorder.records[1].Error)
}

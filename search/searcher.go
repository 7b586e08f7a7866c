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
	"context"
	"fmt"
	"path"
	"time"

	"github.com/gorse-io/gorse-tuner/base"
	"github.com/gorse-io/gorse-tuner/base/log"
	"github.com/gorse-io/gorse-tuner/base/progress"
	"github.com/gorse-io/gorse-tuner/common/floats"
	"github.com/gorse-io/gorse-tuner/common/parallel"
	"github.com/gorse-io/gorse-tuner/config"
	"github.com/gorse-io/gorse-tuner/dataset"
	"github.com/gorse-io/gorse-tuner/model"
	"github.com/gorse-io/gorse-tuner/model/cf"
	"github.com/gorse-io/gorse-tuner/storage/blob"
	"github.com/juju/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Searcher trains every job of a search on every fold and records averaged metrics.
type Searcher struct {
	Config   *config.Config
	Registry *cf.Registry
	Provider dataset.Provider
	Results  blob.Store
	Log      *CompletionLog
	Tracer   *progress.Tracer

	running  atomic.Int64
	finished atomic.Int64
	failed   atomic.Int64
}

func NewSearcher(cfg *config.Config, registry *cf.Registry, provider dataset.Provider, results blob.Store) *Searcher {
	return &Searcher{
		Config:   cfg,
		Registry: registry,
		Provider: provider,
		Results:  results,
		Log:      NewCompletionLog(nil),
		Tracer:   progress.NewTracer("search"),
	}
}

// Stats returns the number of running, finished and failed jobs.
func (s *Searcher) Stats() (running, finished, failed int64) {
	return s.running.Load(), s.finished.Load(), s.failed.Load()
}

// Jobs expands the configured grids. In random mode at most NumTrials combinations are drawn
// per algorithm. Combinations rejected by the registry are logged and skipped.
func (s *Searcher) Jobs() []Job {
	var (
		jobs []Job
		rng  = base.NewRandomGenerator(s.Config.General.RandomState)
	)
	for _, alg := range s.Config.Algorithms {
		grid, err := s.Config.ParamsGrid(alg)
		if err != nil {
			log.SearchLogger().Error("failed to load parameters", zap.String("algorithm", alg), zap.Error(err))
			continue
		}
		var combinations []model.Params
		if s.Config.General.SearchMode == config.SearchModeRandom {
			combinations = grid.Sample(s.Config.General.NumTrials, rng)
		} else {
			combinations = grid.Combinations()
		}
		for _, params := range combinations {
			job, err := NewJob(s.Registry, alg, params)
			if err != nil {
				log.SearchLogger().Warn("skip invalid parameters",
					zap.String("algorithm", alg), zap.Any("params", params), zap.Error(err))
				JobsTotal.WithLabelValues(alg, StatusInvalid).Inc()
				continue
			}
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// Run executes the search in the configured mode.
func (s *Searcher) Run(ctx context.Context) error {
	if s.Config.General.SearchMode == config.SearchModeTPE {
		return s.RunTPE(ctx)
	}
	jobs := s.Jobs()
	if len(jobs) == 0 {
		return errors.NotFoundf("valid job")
	}
	ctx, span := s.Tracer.Start(ctx, "Search", len(jobs))
	log.SearchLogger().Info("start search",
		zap.String("mode", s.Config.General.SearchMode),
		zap.Int("n_jobs", len(jobs)),
		zap.Int("n_workers", s.Config.General.Jobs))
	pool := parallel.NewPool(s.Config.General.Jobs)
	for _, job := range jobs {
		pool.Run(func() {
			defer span.Add(1)
			s.execute(ctx, job)
		})
	}
	pool.Wait()
	if err := ctx.Err(); err != nil {
		span.Fail(err)
		return errors.Trace(err)
	}
	span.End()
	return nil
}

// execute runs a job and records its result. A panic is recorded as a failed job.
func (s *Searcher) execute(ctx context.Context, job Job) (result Result) {
	start := time.Now()
	s.running.Inc()
	RunningJobs.Inc()
	defer func() {
		if r := recover(); r != nil {
			result = Result{Job: job, Err: errors.Errorf("worker panic: %v", r)}
			JobsTotal.WithLabelValues(job.Algorithm, StatusPanic).Inc()
			s.failed.Inc()
		} else if result.Err != nil {
			JobsTotal.WithLabelValues(job.Algorithm, StatusFailed).Inc()
			s.failed.Inc()
		} else {
			JobsTotal.WithLabelValues(job.Algorithm, StatusSucceed).Inc()
		}
		result.Elapsed = time.Since(start)
		JobSeconds.WithLabelValues(job.Algorithm).Observe(result.Elapsed.Seconds())
		RunningJobs.Dec()
		s.running.Dec()
		s.finished.Inc()
		s.Log.Append(result)
		if best, ok := s.Log.Best(); ok && best.Job.Algorithm == job.Algorithm {
			BestRMSE.WithLabelValues(job.Algorithm).Set(float64(best.RMSE()))
		}
	}()
	metrics, err := s.RunJob(ctx, job)
	return Result{Job: job, Metrics: metrics, Err: err}
}

// Folds returns the names of folds a job is trained on.
func (s *Searcher) Folds() []string {
	if s.Config.General.CrossFold == 0 {
		return []string{dataset.SplitName}
	}
	names := make([]string, s.Config.General.CrossFold)
	for i := range names {
		names[i] = dataset.FoldName(i)
	}
	return names
}

// RunJob trains a job on every fold in order and returns metrics averaged over folds.
func (s *Searcher) RunJob(ctx context.Context, job Job) ([]float32, error) {
	folds := s.Folds()
	sum := make([]float32, len(cf.MetricNames))
	for _, name := range folds {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		m, err := s.Registry.Create(ctx, job.Algorithm, name, job.Params, cf.Options{
			Provider: s.Provider,
			Results:  s.Results,
			Prefix:   path.Join(job.Key(), name),
			Compress: s.Config.General.Compress,
			Workers:  s.Config.General.EvalJobs,
		})
		if err != nil {
			return nil, errors.Annotatef(err, "fold %s", name)
		}
		if err = m.Fit(ctx); err != nil {
			return nil, errors.Annotatef(err, "fold %s", name)
		}
		score, err := m.Score(false)
		if err != nil {
			return nil, errors.Annotatef(err, "fold %s", name)
		}
		if err = m.Save(ctx); err != nil {
			return nil, errors.Annotatef(err, "fold %s", name)
		}
		log.SearchLogger().Debug(fmt.Sprintf("fold %s done", name),
			zap.String("algorithm", job.Algorithm), zap.Float32("rmse", score.RMSE))
		floats.Add(sum, score.Vector())
	}
	floats.MulConst(sum, 1/float32(len(folds)))
	return sum, nil
}

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
	"math"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/gorse-io/gorse-tuner/base/log"
	"github.com/gorse-io/gorse-tuner/common/parallel"
	"github.com/gorse-io/gorse-tuner/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// failedTrialValue is reported to the sampler for trials whose job failed.
const failedTrialValue = math.MaxFloat32

// RunTPE runs a TPE study per algorithm. Each study draws NumTrials combinations from the
// configured candidates and minimizes averaged RMSE.
func (s *Searcher) RunTPE(ctx context.Context) error {
	algorithms := s.Config.Algorithms
	ctx, span := s.Tracer.Start(ctx, "TPE", len(algorithms)*s.Config.General.NumTrials)
	pool := parallel.NewPool(s.Config.General.Jobs)
	errs := make([]error, len(algorithms))
	for i, alg := range algorithms {
		pool.Run(func() {
			errs[i] = s.optimize(ctx, alg, func() { span.Add(1) })
		})
	}
	pool.Wait()
	if err := ctx.Err(); err != nil {
		span.Fail(err)
		return errors.Trace(err)
	}
	for _, err := range errs {
		if err != nil {
			span.Fail(err)
			return err
		}
	}
	span.End()
	return nil
}

func (s *Searcher) optimize(ctx context.Context, alg string, done func()) error {
	grid, err := s.Config.ParamsGrid(alg)
	if err != nil {
		return errors.Annotatef(err, "algorithm %s", alg)
	}
	names := grid.Names()
	study, err := goptuna.CreateStudy(alg,
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
		goptuna.StudyOptionSampler(tpe.NewSampler(tpe.SamplerOptionSeed(s.Config.General.RandomState))))
	if err != nil {
		return errors.Trace(err)
	}
	objective := func(trial goptuna.Trial) (float64, error) {
		defer done()
		params := make(model.Params, len(names))
		for _, name := range names {
			candidates := grid[name]
			index, err := trial.SuggestInt(string(name), 0, len(candidates)-1)
			if err != nil {
				return 0, errors.Trace(err)
			}
			params[name] = candidates[index]
		}
		job, err := NewJob(s.Registry, alg, params)
		if err != nil {
			log.SearchLogger().Warn("skip invalid parameters",
				zap.String("algorithm", alg), zap.Any("params", params), zap.Error(err))
			JobsTotal.WithLabelValues(alg, StatusInvalid).Inc()
			return failedTrialValue, nil
		}
		result := s.execute(ctx, job)
		if result.Err != nil {
			return failedTrialValue, nil
		}
		return float64(result.RMSE()), nil
	}
	if err = study.Optimize(objective, s.Config.General.NumTrials); err != nil {
		return errors.Trace(err)
	}
	value, err := study.GetBestValue()
	if err != nil {
		return errors.Trace(err)
	}
	best, err := study.GetBestParams()
	if err != nil {
		return errors.Trace(err)
	}
	log.SearchLogger().Info(fmt.Sprintf("best of %s", alg),
		zap.Float64("rmse", value), zap.Any("indices", best))
	return nil
}

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
	"fmt"
	"slices"

	"github.com/gorse-io/gorse-tuner/common/floats"
	"github.com/gorse-io/gorse-tuner/dataset"
	"github.com/gorse-io/gorse-tuner/storage/blob"
	"go.uber.org/zap"
)

// Model is a factorization model trained on one fold.
type Model interface {
	// Fit trains the model until the epoch budget is exhausted or training loss increases
	// or stops being finite.
	Fit(ctx context.Context) error
	// Predict the rating of an item given by a user, clipped into [1, 5].
	Predict(user, item int32) float32
	// Score evaluates the current state and records a training snapshot.
	Score(log bool) (Score, error)
	// Save writes learned parameters and the latest recommendations.
	Save(ctx context.Context) error
	// Recommend returns at most n items in descending order of predicted ratings.
	Recommend(user int32, n int) []int32
}

// MetricNames names the entries of Score.Vector.
var MetricNames = []string{"RMSE", "Loss", "F1", "HitRatio", "NDCG", "Precision"}

// Score is the evaluation of a model at one point of training.
type Score struct {
	RMSE      float32
	Loss      float32
	F1        float32
	HitRatio  float32
	NDCG      float32
	Precision []float32
	Recall    []float32
	FMeasure  []float32
}

// Vector packs the scalar metrics in the order of MetricNames. The last entry is the
// mean precision over users.
func (s Score) Vector() []float32 {
	return []float32{s.RMSE, s.Loss, s.F1, s.HitRatio, s.NDCG, floats.Mean(s.Precision)}
}

// TrainingSnapshot captures the state after an epoch. Epoch 0 is the initial state.
type TrainingSnapshot struct {
	Epoch      int
	Precision  []float32
	Recall     []float32
	FMeasure   []float32
	RMSE       float32
	UserFactor [][]float32
	ItemFactor [][]float32
	UserBias   []float32
	ItemBias   []float32
}

// Insight consumes training snapshots once fitting ends.
type Insight func(snapshots []TrainingSnapshot)

// LogInsight returns an insight that writes one line per snapshot.
func LogInsight(logger *zap.Logger) Insight {
	return func(snapshots []TrainingSnapshot) {
		for _, snapshot := range snapshots {
			logger.Info(fmt.Sprintf("snapshot %d", snapshot.Epoch),
				zap.Float32("rmse", snapshot.RMSE),
				zap.Float32("precision", floats.Mean(snapshot.Precision)),
				zap.Float32("recall", floats.Mean(snapshot.Recall)),
				zap.Float32("f_measure", floats.Mean(snapshot.FMeasure)),
				zap.Float32("user_bias_norm", floats.SquaredNorm(snapshot.UserBias)),
				zap.Float32("item_bias_norm", floats.SquaredNorm(snapshot.ItemBias)))
		}
	}
}

// Options carries collaborators of a model.
type Options struct {
	// Provider loads the fold a model is trained on.
	Provider dataset.Provider
	// Results receives learned parameters. Save fails without it.
	Results blob.Store
	// Prefix of result files.
	Prefix string
	// Compress result files with gzip.
	Compress bool
	// Workers building top-n lists in Score. Values below one mean one.
	Workers int
	// Insight receives snapshots when insights are enabled.
	Insight Insight
	// Logger of training progress. Defaults to the per-algorithm logger.
	Logger *zap.Logger
}

func cloneMatrix(m [][]float32) [][]float32 {
	c := make([][]float32, len(m))
	for i := range m {
		c[i] = slices.Clone(m[i])
	}
	return c
}

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
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	"github.com/gorse-io/gorse-tuner/base/log"
	"github.com/gorse-io/gorse-tuner/base/progress"
	"github.com/gorse-io/gorse-tuner/common/floats"
	"github.com/gorse-io/gorse-tuner/common/parallel"
	"github.com/gorse-io/gorse-tuner/dataset"
	"github.com/gorse-io/gorse-tuner/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	// lrDecay is applied to the learning rate after every epoch that does not stop training.
	lrDecay   = 0.93
	minRating = 1
	maxRating = 5
)

// BiasedMF is biased matrix factorization trained by stochastic gradient descent:
//
//	\hat{r}_{ui} = \mu + b_u + b_i + q_i^T p_u
//
// Ratings are visited in training order unless shuffle is set. Training stops as soon as the
// regularized training loss increases, keeping the state of that epoch.
type BiasedMF struct {
	model.BaseModel
	name    string
	hp      model.HyperParameters
	useBias bool
	fold    *dataset.Fold
	opts    Options
	logger  *zap.Logger
	// seen items of each user in the training split
	seen []*bitset.BitSet
	// learning rate of the next epoch
	lr     float32
	epochs int
	buffer []float32
	// scoreFn evaluates the model after each epoch
	scoreFn func(log bool) (Score, error)

	GlobalMean float32
	UserBias   []float32
	ItemBias   []float32
	UserFactor [][]float32
	ItemFactor [][]float32

	snapshots       []TrainingSnapshot
	recommendations []userRecommendation
}

type userRecommendation struct {
	User  int32
	Items []int32
}

// NewBiasedMF creates a model on a loaded fold.
func NewBiasedMF(fold *dataset.Fold, params model.Params, opts Options) (*BiasedMF, error) {
	return newBiasedMF(AlgBiasedMF, true, fold, params, opts)
}

// NewSVD creates a factorization model without bias terms.
func NewSVD(fold *dataset.Fold, params model.Params, opts Options) (*BiasedMF, error) {
	return newBiasedMF(AlgSVD, false, fold, params, opts)
}

func newBiasedMF(name string, useBias bool, fold *dataset.Fold, params model.Params, opts Options) (*BiasedMF, error) {
	hp, err := model.NewHyperParameters(params)
	if err != nil {
		return nil, errors.Trace(err)
	}
	m := &BiasedMF{
		name:    name,
		hp:      hp,
		useBias: useBias,
		fold:    fold,
		opts:    opts,
		logger:  opts.Logger,
	}
	if m.logger == nil {
		m.logger = log.AlgorithmLogger(name)
	}
	m.SetParams(params)
	m.scoreFn = m.Score
	m.seen = make([]*bitset.BitSet, fold.CountUsers())
	for u := range m.seen {
		m.seen[u] = bitset.New(uint(fold.CountItems()))
		for _, item := range fold.UserItems[u] {
			m.seen[u].Set(uint(item))
		}
	}
	m.init()
	return m, nil
}

// LearningRate returns the learning rate of the next epoch.
func (m *BiasedMF) LearningRate() float32 {
	return m.lr
}

// Epochs returns the number of epochs run by the last Fit.
func (m *BiasedMF) Epochs() int {
	return m.epochs
}

// Snapshots returns the training history of the last Fit.
func (m *BiasedMF) Snapshots() []TrainingSnapshot {
	return m.snapshots
}

// Predict falls back to the global mean when the learned terms are not finite.
func (m *BiasedMF) Predict(user, item int32) float32 {
	ret := m.predictRaw(user, item)
	if math32.IsNaN(ret) || math32.IsInf(ret, 0) {
		ret = m.GlobalMean
	}
	return floats.Clip(ret, minRating, maxRating)
}

func (m *BiasedMF) predictRaw(user, item int32) float32 {
	ret := m.GlobalMean
	userValid := user >= 0 && int(user) < len(m.UserBias)
	itemValid := item >= 0 && int(item) < len(m.ItemBias)
	if userValid {
		ret += m.UserBias[user]
	}
	if itemValid {
		ret += m.ItemBias[item]
	}
	if userValid && itemValid {
		ret += floats.Dot(m.UserFactor[user], m.ItemFactor[item])
	}
	return ret
}

func (m *BiasedMF) Recommend(user int32, n int) []int32 {
	if n <= 0 {
		return nil
	}
	var seen *bitset.BitSet
	if m.hp.RecommendNew && user >= 0 && int(user) < len(m.seen) {
		seen = m.seen[user]
	}
	nItems := m.fold.CountItems()
	scores := make([]float32, nItems)
	candidates := make([]int32, 0, nItems)
	for i := 0; i < nItems; i++ {
		if seen != nil && seen.Test(uint(i)) {
			continue
		}
		scores[i] = m.Predict(user, int32(i))
		candidates = append(candidates, int32(i))
	}
	slices.SortStableFunc(candidates, func(a, b int32) int {
		return cmp.Compare(scores[b], scores[a])
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func (m *BiasedMF) Fit(ctx context.Context) error {
	m.init()
	m.logger.Info("fit "+m.name,
		zap.String("fold", m.fold.Name),
		zap.Int("n_users", m.fold.CountUsers()),
		zap.Int("n_items", m.fold.CountItems()),
		zap.Int("train_set_size", len(m.fold.TrainRatings)),
		zap.Int("test_set_size", len(m.fold.TestRatings)),
		zap.Float32("global_mean", m.GlobalMean),
		zap.Any("params", m.GetParams()))
	_, span := progress.Start(ctx, m.name+"/"+m.fold.Name, m.hp.NEpochs)
	preLoss := math32.Inf(1)
	for epoch := 1; epoch <= m.hp.NEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			span.Fail(err)
			return errors.Trace(err)
		}
		fitStart := time.Now()
		m.runEpoch()
		fitTime := time.Since(fitStart)
		evalStart := time.Now()
		score, err := m.scoreFn(true)
		if err != nil {
			span.Fail(err)
			return errors.Trace(err)
		}
		m.logger.Debug(fmt.Sprintf("fit %s %v/%v", m.name, epoch, m.hp.NEpochs),
			zap.String("fit_time", fitTime.String()),
			zap.String("eval_time", time.Since(evalStart).String()),
			zap.Float32("lr", m.lr),
			zap.Float32("loss", score.Loss),
			zap.Float32("rmse", score.RMSE))
		span.Add(1)
		if math32.IsNaN(score.Loss) || math32.IsInf(score.Loss, 0) {
			m.logger.Info("training loss is not finite, stop training",
				zap.Int("epoch", epoch),
				zap.Float32("loss", score.Loss))
			break
		}
		if score.Loss > preLoss {
			m.logger.Info("training loss increased, stop training",
				zap.Int("epoch", epoch),
				zap.Float32("loss", score.Loss),
				zap.Float32("previous_loss", preLoss))
			break
		}
		preLoss = score.Loss
		m.lr *= lrDecay
	}
	span.End()
	if m.hp.Insights {
		insight := m.opts.Insight
		if insight == nil {
			insight = LogInsight(m.logger)
		}
		insight(slices.Clone(m.snapshots))
	}
	m.logger.Info(fmt.Sprintf("fit %s complete", m.name),
		zap.Int("epochs", m.epochs),
		zap.Float32("lr", m.lr))
	return nil
}

// init resets the state: biases are zero, factors are uniform in [0, 0.1/sqrt(F)) and the
// global mean is the mean of training ratings.
func (m *BiasedMF) init() {
	m.SetParams(m.GetParams())
	rng := m.GetRandomGenerator()
	nFactors := m.hp.NFactors
	scale := 0.1 / math32.Sqrt(float32(nFactors))
	m.lr = m.hp.Lr
	m.epochs = 0
	m.buffer = make([]float32, nFactors)
	m.GlobalMean = 0
	if len(m.fold.TrainRatings) > 0 {
		var sum float64
		for _, r := range m.fold.TrainRatings {
			sum += float64(r.Rating)
		}
		m.GlobalMean = float32(sum / float64(len(m.fold.TrainRatings)))
	}
	m.UserBias = make([]float32, m.fold.CountUsers())
	m.ItemBias = make([]float32, m.fold.CountItems())
	m.UserFactor = rng.UniformMatrix(m.fold.CountUsers(), nFactors, 0, scale)
	m.ItemFactor = rng.UniformMatrix(m.fold.CountItems(), nFactors, 0, scale)
	nTestUsers := len(m.fold.TestUserItems)
	m.recommendations = nil
	m.snapshots = []TrainingSnapshot{m.snapshot(0, make([]float32, nTestUsers),
		make([]float32, nTestUsers), make([]float32, nTestUsers))}
}

// runEpoch makes one pass of updates over training ratings. Factors of a user and an item are
// updated simultaneously from their values before the step.
func (m *BiasedMF) runEpoch() {
	ratings := m.fold.TrainRatings
	if m.hp.Shuffle {
		ratings = slices.Clone(ratings)
		m.GetRandomGenerator().Shuffle(len(ratings), func(i, j int) {
			ratings[i], ratings[j] = ratings[j], ratings[i]
		})
	}
	lr, userReg, itemReg := m.lr, m.hp.UserReg, m.hp.ItemReg
	for _, r := range ratings {
		userFactor, itemFactor := m.UserFactor[r.User], m.ItemFactor[r.Item]
		diff := r.Rating - m.Predict(r.User, r.Item)
		if m.useBias {
			m.UserBias[r.User] += lr * (diff - userReg*m.UserBias[r.User])
			m.ItemBias[r.Item] += lr * (diff - itemReg*m.ItemBias[r.Item])
		}
		copy(m.buffer, itemFactor)
		// q_i += lr * (e * p_u - reg * q_i)
		floats.MulConst(itemFactor, 1-lr*itemReg)
		floats.MulConstAdd(userFactor, lr*diff, itemFactor)
		// p_u += lr * (e * q_i - reg * p_u)
		floats.MulConst(userFactor, 1-lr*userReg)
		floats.MulConstAdd(m.buffer, lr*diff, userFactor)
	}
	m.epochs++
}

// Loss is the sum of squared training errors plus regularization of biases and factors.
func (m *BiasedMF) Loss() float32 {
	var loss float32
	for _, r := range m.fold.TrainRatings {
		diff := r.Rating - m.Predict(r.User, r.Item)
		loss += diff * diff
	}
	for u := range m.UserFactor {
		loss += m.hp.UserReg * (floats.SquaredNorm(m.UserFactor[u]) + m.UserBias[u]*m.UserBias[u])
	}
	for i := range m.ItemFactor {
		loss += m.hp.ItemReg * (floats.SquaredNorm(m.ItemFactor[i]) + m.ItemBias[i]*m.ItemBias[i])
	}
	return loss
}

func (m *BiasedMF) Score(log bool) (Score, error) {
	loss := m.Loss()
	predictions := make([]float32, len(m.fold.TestRatings))
	truth := make([]float32, len(m.fold.TestRatings))
	for i, r := range m.fold.TestRatings {
		predictions[i] = m.Predict(r.User, r.Item)
		truth[i] = r.Rating
	}
	rmse, err := RMSE(predictions, truth)
	if err != nil {
		return Score{}, errors.Trace(err)
	}
	users := m.fold.TestUsers()
	recommended := make([][]int32, len(users))
	purchased := make([][]int32, len(users))
	m.recommendations = make([]userRecommendation, len(users))
	workers := max(m.opts.Workers, 1)
	chunks := parallel.Split(lo.Range(len(users)), workers)
	err = parallel.Parallel(context.Background(), len(chunks), workers, func(_, c int) error {
		for _, i := range chunks[c] {
			user := users[i]
			recommended[i] = m.Recommend(user, m.hp.TopN)
			purchased[i] = m.fold.TestUserItems[user]
			m.recommendations[i] = userRecommendation{User: user, Items: recommended[i]}
		}
		return nil
	})
	if err != nil {
		return Score{}, errors.Annotate(err, "recommend for test users")
	}
	eval := EvalAll(recommended, purchased, m.hp.TopN)
	if log {
		m.logger.Info(fmt.Sprintf("score %s", m.name),
			zap.Int("epoch", m.epochs),
			zap.Float32("loss", loss),
			zap.Float32("rmse", rmse))
	}
	m.snapshots = append(m.snapshots, m.snapshot(m.epochs, eval.Precision, eval.Recall, eval.FMeasure))
	m.snapshots[len(m.snapshots)-1].RMSE = rmse
	return Score{
		RMSE:      rmse,
		Loss:      loss,
		F1:        eval.F1,
		HitRatio:  eval.HitRatio,
		NDCG:      eval.NDCG,
		Precision: eval.Precision,
		Recall:    eval.Recall,
		FMeasure:  eval.FMeasure,
	}, nil
}

func (m *BiasedMF) snapshot(epoch int, precision, recall, fMeasure []float32) TrainingSnapshot {
	return TrainingSnapshot{
		Epoch:      epoch,
		Precision:  slices.Clone(precision),
		Recall:     slices.Clone(recall),
		FMeasure:   slices.Clone(fMeasure),
		UserFactor: cloneMatrix(m.UserFactor),
		ItemFactor: cloneMatrix(m.ItemFactor),
		UserBias:   slices.Clone(m.UserBias),
		ItemBias:   slices.Clone(m.ItemBias),
	}
}

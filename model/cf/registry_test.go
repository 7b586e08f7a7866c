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
	"testing"

	"github.com/gorse-io/gorse-tuner/dataset"
	"github.com/gorse-io/gorse-tuner/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	folds map[string]*dataset.Fold
}

func (p *mockProvider) Load(_ context.Context, name string) (*dataset.Fold, error) {
	fold, exist := p.folds[name]
	if !exist {
		return nil, errors.NotFoundf("missing artifact %s", name)
	}
	return fold, nil
}

func TestDefaultRegistry(t *testing.T) {
	registry := DefaultRegistry()
	assert.Equal(t, []string{AlgBiasedMF, AlgSVD}, registry.Names())
	assert.NoError(t, registry.Validate(AlgBiasedMF, newTestParams().Overwrite(model.Params{model.NEpochs: 1})))

	// unknown algorithm
	err := registry.Validate("unknown", newTestParams())
	assert.True(t, errors.Is(err, errors.NotValid))
	// missing required hyper-parameter
	params := newTestParams()
	delete(params, model.NFactors)
	err = registry.Validate(AlgSVD, params)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRegistry_Create(t *testing.T) {
	registry := DefaultRegistry()
	provider := &mockProvider{folds: map[string]*dataset.Fold{dataset.SplitName: newTinyFold()}}

	m, err := registry.Create(context.Background(), AlgBiasedMF, dataset.SplitName, newTestParams(), Options{Provider: provider})
	require.NoError(t, err)
	assert.IsType(t, &BiasedMF{}, m)
	assert.NoError(t, m.Fit(context.Background()))

	// missing fold
	_, err = registry.Create(context.Background(), AlgBiasedMF, "0", newTestParams(), Options{Provider: provider})
	assert.True(t, dataset.IsMissingArtifact(err))
	// unknown algorithm
	_, err = registry.Create(context.Background(), "unknown", dataset.SplitName, newTestParams(), Options{Provider: provider})
	assert.True(t, errors.Is(err, errors.NotValid))
	// no provider
	_, err = registry.Create(context.Background(), AlgBiasedMF, dataset.SplitName, newTestParams(), Options{})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()
	assert.Empty(t, registry.Names())
	var created string
	registry.Register("custom", func(fold *dataset.Fold, params model.Params, opts Options) (Model, error) {
		created = fold.Name
		return NewBiasedMF(fold, params, opts)
	}, model.TopN)
	assert.Equal(t, []string{"custom"}, registry.Names())
	provider := &mockProvider{folds: map[string]*dataset.Fold{dataset.SplitName: newTinyFold()}}

	_, err := registry.Create(context.Background(), "custom", dataset.SplitName, model.Params{}, Options{Provider: provider})
	assert.True(t, errors.Is(err, errors.NotValid))
	_, err = registry.Create(context.Background(), "custom", dataset.SplitName, model.Params{model.TopN: 3}, Options{Provider: provider})
	assert.NoError(t, err)
	assert.Equal(t, dataset.SplitName, created)
}

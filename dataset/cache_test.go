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
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type countingProvider struct {
	loads atomic.Int32
}

func (p *countingProvider) Load(_ context.Context, name string) (*Fold, error) {
	p.loads.Inc()
	if name == "missing" {
		return nil, errors.NotFoundf("fold %s", name)
	}
	time.Sleep(10 * time.Millisecond)
	return &Fold{Name: name}, nil
}

func TestCachedProvider(t *testing.T) {
	provider := &countingProvider{}
	cached := NewCachedProvider(provider, time.Hour, 10)
	defer cached.Close()

	var wg sync.WaitGroup
	folds := make([]*Fold, 8)
	for i := range folds {
		wg.Go(func() {
			fold, err := cached.Load(context.Background(), "0")
			assert.NoError(t, err)
			folds[i] = fold
		})
	}
	wg.Wait()
	assert.Equal(t, int32(1), provider.loads.Load())
	for _, fold := range folds {
		assert.Same(t, folds[0], fold)
	}
	assert.Equal(t, 1, cached.Len())

	_, err := cached.Load(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), provider.loads.Load())
	assert.Equal(t, 2, cached.Len())
}

func TestCachedProviderError(t *testing.T) {
	provider := &countingProvider{}
	cached := NewCachedProvider(provider, time.Hour, 10)
	defer cached.Close()
	_, err := cached.Load(context.Background(), "missing")
	assert.True(t, IsMissingArtifact(err))
	_, err = cached.Load(context.Background(), "missing")
	assert.True(t, IsMissingArtifact(err))
	assert.Equal(t, int32(2), provider.loads.Load())
	assert.Zero(t, cached.Len())
}

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
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"golang.org/x/sync/singleflight"
)

// CachedProvider keeps loaded folds in memory so that jobs sharing a fold load it once.
// Folds are shared between models and must not be modified.
type CachedProvider struct {
	provider Provider
	cache    *ttlcache.Cache[string, *Fold]
	group    singleflight.Group
}

// NewCachedProvider caches folds of provider for ttl. At most capacity folds are kept.
func NewCachedProvider(provider Provider, ttl time.Duration, capacity uint64) *CachedProvider {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *Fold](ttl),
		ttlcache.WithCapacity[string, *Fold](capacity),
	)
	go cache.Start()
	return &CachedProvider{provider: provider, cache: cache}
}

func (p *CachedProvider) Load(ctx context.Context, name string) (*Fold, error) {
	if item := p.cache.Get(name); item != nil {
		return item.Value(), nil
	}
	value, err, _ := p.group.Do(name, func() (interface{}, error) {
		if item := p.cache.Get(name); item != nil {
			return item.Value(), nil
		}
		fold, err := p.provider.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		p.cache.Set(name, fold, ttlcache.DefaultTTL)
		return fold, nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return value.(*Fold), nil
}

// Len returns the number of cached folds.
func (p *CachedProvider) Len() int {
	return p.cache.Len()
}

// Close stops the expiration loop.
func (p *CachedProvider) Close() {
	p.cache.Stop()
}

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
	"sort"
	"sync"

	"github.com/gorse-io/gorse-tuner/dataset"
	"github.com/gorse-io/gorse-tuner/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const (
	AlgBiasedMF = "biased_fm"
	AlgSVD      = "svd"
)

// Creator constructs a model on a loaded fold.
type Creator func(fold *dataset.Fold, params model.Params, opts Options) (Model, error)

type registration struct {
	creator  Creator
	required []model.ParamName
}

// Registry maps algorithm names to constructors.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry of built-in algorithms.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		required := []model.ParamName{model.NFactors, model.Lr, model.UserReg, model.ItemReg, model.NEpochs}
		defaultRegistry = NewRegistry()
		defaultRegistry.Register(AlgBiasedMF, func(fold *dataset.Fold, params model.Params, opts Options) (Model, error) {
			return NewBiasedMF(fold, params, opts)
		}, required...)
		defaultRegistry.Register(AlgSVD, func(fold *dataset.Fold, params model.Params, opts Options) (Model, error) {
			return NewSVD(fold, params, opts)
		}, required...)
	})
	return defaultRegistry
}

// Register adds an algorithm. Parameters named in required must be present in every combination.
func (r *Registry) Register(name string, creator Creator, required ...model.ParamName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = registration{creator: creator, required: required}
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := lo.Keys(r.entries)
	sort.Strings(names)
	return names
}

// Validate checks that an algorithm exists and accepts the parameters.
func (r *Registry) Validate(name string, params model.Params) error {
	r.mu.RLock()
	entry, exist := r.entries[name]
	r.mu.RUnlock()
	if !exist {
		return errors.NotValidf("algorithm %s", name)
	}
	if _, err := model.NewHyperParameters(params, entry.required...); err != nil {
		return errors.Annotatef(err, "algorithm %s", name)
	}
	return nil
}

// Create validates parameters, loads the fold at path and constructs the model.
func (r *Registry) Create(ctx context.Context, name, path string, params model.Params, opts Options) (Model, error) {
	if err := r.Validate(name, params); err != nil {
		return nil, errors.Trace(err)
	}
	if opts.Provider == nil {
		return nil, errors.NotValidf("dataset provider")
	}
	fold, err := opts.Provider.Load(ctx, path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r.mu.RLock()
	entry := r.entries[name]
	r.mu.RUnlock()
	m, err := entry.creator(fold, params, opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return m, nil
}

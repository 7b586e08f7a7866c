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

package parallel

import "sync"

// Pool runs submitted functions. Wait blocks until every submitted function returns.
type Pool interface {
	Run(runner func())
	Wait()
}

// NewPool returns a pool matching the number of jobs: zero means unbounded,
// one means sequential.
func NewPool(jobs int) Pool {
	switch {
	case jobs <= 0:
		return &InfinitePool{}
	case jobs == 1:
		return &SequentialPool{}
	default:
		return NewConcurrentPool(jobs)
	}
}

type SequentialPool struct{}

func (p *SequentialPool) Run(runner func()) {
	runner()
}

func (p *SequentialPool) Wait() {}

type InfinitePool struct {
	wg sync.WaitGroup
}

func (p *InfinitePool) Run(runner func()) {
	p.wg.Go(runner)
}

func (p *InfinitePool) Wait() {
	p.wg.Wait()
}

type ConcurrentPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewConcurrentPool(size int) *ConcurrentPool {
	return &ConcurrentPool{sem: make(chan struct{}, size)}
}

func (p *ConcurrentPool) Run(runner func()) {
	p.sem <- struct{}{}
	p.wg.Go(func() {
		defer func() { <-p.sem }()
		runner()
	})
}

func (p *ConcurrentPool) Wait() {
	p.wg.Wait()
}

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

// Package progress tracks nested spans of long running work such as searches and epochs.
package progress

import (
	"context"
	"slices"
	"sync"
	"time"
)

type spanKey struct{}

type Status string

const (
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
)

// Tracer owns the root spans of one component.
type Tracer struct {
	name  string
	mu    sync.Mutex
	roots []*Span
}

func NewTracer(name string) *Tracer {
	return &Tracer{name: name}
}

// Start creates a root span and returns a context carrying it.
func (t *Tracer) Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	span := newSpan(name, total)
	t.mu.Lock()
	t.roots = append(t.roots, span)
	t.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, span), span
}

// List returns the progress of root spans in the order they were started.
func (t *Tracer) List() []Progress {
	t.mu.Lock()
	roots := slices.Clone(t.roots)
	t.mu.Unlock()
	progress := make([]Progress, len(roots))
	for i, span := range roots {
		progress[i] = span.Progress()
		progress[i].Tracer = t.name
	}
	return progress
}

// Span counts finished units out of a total.
type Span struct {
	name     string
	mu       sync.Mutex
	status   Status
	total    int
	count    int
	err      string
	start    time.Time
	finish   time.Time
	children []*Span
}

func newSpan(name string, total int) *Span {
	return &Span{name: name, status: StatusRunning, total: total, start: time.Now()}
}

func (s *Span) Add(n int) {
	s.mu.Lock()
	s.count += n
	s.mu.Unlock()
}

// End completes a running span. A failed span stays failed.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return
	}
	s.status = StatusComplete
	s.count = s.total
	s.finish = time.Now()
}

func (s *Span) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusFailed
	s.err = err.Error()
	s.finish = time.Now()
}

func (s *Span) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Progress snapshots the span and its descendants.
func (s *Span) Progress() Progress {
	s.mu.Lock()
	p := Progress{
		Name:       s.name,
		Status:     s.status,
		Error:      s.err,
		Count:      s.count,
		Total:      s.total,
		StartTime:  s.start,
		FinishTime: s.finish,
	}
	children := slices.Clone(s.children)
	s.mu.Unlock()
	for _, child := range children {
		p.Children = append(p.Children, child.Progress())
	}
	return p
}

// Start creates a child of the span carried by ctx. Without a parent the span is detached
// and ctx is returned unchanged.
func Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	child := newSpan(name, total)
	if ctx == nil {
		return context.Background(), child
	}
	parent, ok := ctx.Value(spanKey{}).(*Span)
	if !ok {
		return ctx, child
	}
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

type Progress struct {
	Tracer     string
	Name       string
	Status     Status
	Error      string
	Count      int
	Total      int
	StartTime  time.Time
	FinishTime time.Time
	Children   []Progress
}

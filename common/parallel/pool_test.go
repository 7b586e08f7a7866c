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

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialPool(t *testing.T) {
	pool := &SequentialPool{}
	count := 0
	for i := 0; i < 100; i++ {
		pool.Run(func() {
			count++
		})
	}
	pool.Wait()
	assert.Equal(t, 100, count)
}

func TestInfinitePool(t *testing.T) {
	pool := &InfinitePool{}
	var count atomic.Int64
	for i := 0; i < 100; i++ {
		pool.Run(func() {
			count.Add(1)
		})
	}
	pool.Wait()
	assert.Equal(t, int64(100), count.Load())
}

func TestConcurrentPool(t *testing.T) {
	pool := NewConcurrentPool(4)
	var running, maxRunning, count atomic.Int64
	for i := 0; i < 100; i++ {
		pool.Run(func() {
			n := running.Add(1)
			for {
				m := maxRunning.Load()
				if n <= m || maxRunning.CompareAndSwap(m, n) {
					break
				}
			}
			count.Add(1)
			running.Add(-1)
		})
	}
	pool.Wait()
	assert.Equal(t, int64(100), count.Load())
	assert.LessOrEqual(t, maxRunning.Load(), int64(4))
}

func TestNewPool(t *testing.T) {
	assert.IsType(t, &InfinitePool{}, NewPool(0))
	assert.IsType(t, &SequentialPool{}, NewPool(1))
	assert.IsType(t, &ConcurrentPool{}, NewPool(3))
}

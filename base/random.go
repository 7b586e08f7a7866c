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

package base

import (
	"math/rand"
)

// RandomGenerator is a seeded source owned by a single model or search. It is not safe for
// concurrent use.
type RandomGenerator struct {
	*rand.Rand
}

func NewRandomGenerator(seed int64) RandomGenerator {
	return RandomGenerator{rand.New(rand.NewSource(seed))}
}

// UniformVector draws size values from [low, high).
func (rng RandomGenerator) UniformVector(size int, low, high float32) []float32 {
	ret := make([]float32, size)
	rng.fillUniform(ret, low, high)
	return ret
}

// UniformMatrix draws a row x col matrix from [low, high) in row-major order. Rows share one
// backing array.
func (rng RandomGenerator) UniformMatrix(row, col int, low, high float32) [][]float32 {
	data := make([]float32, row*col)
	rng.fillUniform(data, low, high)
	ret := make([][]float32, row)
	for i := range ret {
		ret[i] = data[i*col : (i+1)*col : (i+1)*col]
	}
	return ret
}

func (rng RandomGenerator) fillUniform(dst []float32, low, high float32) {
	scale := high - low
	for i := range dst {
		dst[i] = rng.Float32()*scale + low
	}
}

// Choice picks n distinct indices from [0, size) in random order.
func (rng RandomGenerator) Choice(size, n int) []int {
	if n > size {
		n = size
	}
	return rng.Perm(size)[:n]
}

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

// Package floats holds the float32 vector kernels of factor updates and metric averaging.
package floats

import "github.com/chewxy/math32"

func mustMatch(a, b []float32) {
	if len(a) != len(b) {
		panic("floats: slice lengths do not match")
	}
}

// Add s to dst element-wise.
func Add(dst, s []float32) {
	mustMatch(dst, s)
	for i, v := range s {
		dst[i] += v
	}
}

// MulConst scales dst by c.
func MulConst(dst []float32, c float32) {
	for i := range dst {
		dst[i] *= c
	}
}

// MulConstAdd adds a scaled by c to dst.
func MulConstAdd(a []float32, c float32, dst []float32) {
	mustMatch(a, dst)
	for i, v := range a {
		dst[i] += v * c
	}
}

func Dot(a, b []float32) float32 {
	mustMatch(a, b)
	var sum float32
	for i, v := range a {
		sum += v * b[i]
	}
	return sum
}

func SquaredNorm(a []float32) float32 {
	return Dot(a, a)
}

// Mean of an empty slice is zero.
func Mean(a []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	var sum float32
	for _, v := range a {
		sum += v
	}
	return sum / float32(len(a))
}

// Clip limits x into [low, high]. NaN is clipped to low.
func Clip(x, low, high float32) float32 {
	if math32.IsNaN(x) {
		return low
	}
	return math32.Max(low, math32.Min(high, x))
}

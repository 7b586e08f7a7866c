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

package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/gorse-io/gorse-tuner/base"
	"github.com/gorse-io/gorse-tuner/base/log"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ParamName is the type of hyper-parameter names.
type ParamName string

const (
	NFactors     ParamName = "n_factors"     // number of latent factors
	Lr           ParamName = "lr"            // initial learning rate
	UserReg      ParamName = "user_reg"      // regularization strength of user terms
	ItemReg      ParamName = "item_reg"      // regularization strength of item terms
	NEpochs      ParamName = "n_epochs"      // maximum number of epochs
	TopN         ParamName = "top_n"         // length of recommendation lists
	RecommendNew ParamName = "recommend_new" // exclude training items from recommendations
	Insights     ParamName = "insights"      // hand training snapshots to the insight sink
	RandomState  ParamName = "random_state"  // random seed
	Shuffle      ParamName = "shuffle"       // reshuffle training ratings every epoch
)

// Params stores hyper-parameters for a model. Numeric values decoded from TOML or JSON
// are accepted as int, int64 or float64.
type Params map[ParamName]interface{}

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params, len(parameters))
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// GetInt gets an integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		case int64:
			return int(val)
		case float64:
			if val == float64(int(val)) {
				return int(val)
			}
		}
		logMismatch(name, "int", val)
	}
	return _default
}

// GetInt64 gets an int64 parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		case float64:
			if val == float64(int64(val)) {
				return int64(val)
			}
		}
		logMismatch(name, "int64", val)
	}
	return _default
}

// GetFloat32 gets a float parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetFloat32(name ParamName, _default float32) float32 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float32:
			return val
		case float64:
			return float32(val)
		case int:
			return float32(val)
		case int64:
			return float32(val)
		}
		logMismatch(name, "float32", val)
	}
	return _default
}

// GetBool gets a bool parameter by name. Integers are treated as flags.
func (parameters Params) GetBool(name ParamName, _default bool) bool {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case bool:
			return val
		case int:
			return val != 0
		case int64:
			return val != 0
		}
		logMismatch(name, "bool", val)
	}
	return _default
}

func logMismatch(name ParamName, expect string, val interface{}) {
	log.Logger().Warn("unexpected type of hyper-parameter",
		zap.String("name", string(name)),
		zap.String("expect", expect),
		zap.String("actual", fmt.Sprint(reflect.TypeOf(val))))
}

// Overwrite returns a copy of parameters with params applied on top.
func (parameters Params) Overwrite(params Params) Params {
	merged := parameters.Copy()
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

func (parameters Params) String() string {
	b, err := json.Marshal(parameters)
	if err != nil {
		return fmt.Sprint(map[ParamName]interface{}(parameters))
	}
	return string(b)
}

// ParamsGrid contains candidates for hyper-parameter search.
type ParamsGrid map[ParamName][]interface{}

// Add appends candidates of a hyper-parameter.
func (grid ParamsGrid) Add(name ParamName, values ...interface{}) {
	grid[name] = append(grid[name], values...)
}

func (grid ParamsGrid) Len() int {
	return len(grid)
}

// Names returns hyper-parameter names in ascending order.
func (grid ParamsGrid) Names() []ParamName {
	names := lo.Keys(grid)
	sort.Slice(names, func(i, j int) bool {
		return names[i] < names[j]
	})
	return names
}

// NumCombinations returns the size of the cross product.
func (grid ParamsGrid) NumCombinations() int {
	if len(grid) == 0 {
		return 0
	}
	count := 1
	for _, values := range grid {
		count *= len(values)
	}
	return count
}

// Combinations enumerates the full cross product. Names are visited in ascending order and
// the last name varies fastest.
func (grid ParamsGrid) Combinations() []Params {
	names := grid.Names()
	if len(names) == 0 {
		return nil
	}
	var (
		results []Params
		current = make(Params, len(names))
		dfs     func(depth int)
	)
	dfs = func(depth int) {
		if depth == len(names) {
			results = append(results, current.Copy())
			return
		}
		name := names[depth]
		for _, value := range grid[name] {
			current[name] = value
			dfs(depth + 1)
		}
	}
	dfs(0)
	return results
}

// Sample draws n distinct combinations. The full grid is returned when it has at most n combinations.
func (grid ParamsGrid) Sample(n int, rng base.RandomGenerator) []Params {
	combinations := grid.Combinations()
	if n >= len(combinations) {
		return combinations
	}
	return lo.Map(rng.Choice(len(combinations), n), func(i int, _ int) Params {
		return combinations[i]
	})
}

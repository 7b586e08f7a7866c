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
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/juju/errors"
)

// Filter keeps raw ratings for which a boolean expression over user, item and rating holds,
// e.g. `rating >= 3 && item != "unknown"`.
type Filter struct {
	program *vm.Program
}

func NewFilter(expression string) (*Filter, error) {
	program, err := expr.Compile(expression, expr.Env(filterEnv(RawRating{})))
	if err != nil {
		return nil, errors.NewNotValid(err, "filter expression")
	}
	if program.Node().Type().Kind() != reflect.Bool {
		return nil, errors.NotValidf("filter %q does not return bool", expression)
	}
	return &Filter{program: program}, nil
}

func filterEnv(r RawRating) map[string]any {
	return map[string]any{
		"user":   r.User,
		"item":   r.Item,
		"rating": float64(r.Rating),
	}
}

func (f *Filter) Match(r RawRating) (bool, error) {
	result, err := expr.Run(f.program, filterEnv(r))
	if err != nil {
		return false, errors.Trace(err)
	}
	return result.(bool), nil
}

// Apply returns the matching ratings in input order.
func (f *Filter) Apply(ratings []RawRating) ([]RawRating, error) {
	var kept []RawRating
	for _, r := range ratings {
		ok, err := f.Match(r)
		if err != nil {
			return nil, errors.Annotatef(err, "rating %v", r)
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

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

package search

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/gorse-io/gorse-tuner/model"
	"github.com/gorse-io/gorse-tuner/model/cf"
	"github.com/juju/errors"
)

// Job is one algorithm with one combination of hyper-parameters.
type Job struct {
	Algorithm string       `json:"algorithm"`
	Params    model.Params `json:"params"`
}

// NewJob validates params against the registered algorithm.
func NewJob(registry *cf.Registry, algorithm string, params model.Params) (Job, error) {
	if err := registry.Validate(algorithm, params); err != nil {
		return Job{}, errors.Trace(err)
	}
	return Job{Algorithm: algorithm, Params: params.Copy()}, nil
}

// Key identifies the job in result paths, e.g. "biased_fm/lr=0.01,n_factors=10".
func (j Job) Key() string {
	names := make(model.ParamsGrid, len(j.Params))
	for name := range j.Params {
		names[name] = nil
	}
	pairs := make([]string, 0, len(j.Params))
	for _, name := range names.Names() {
		value := strings.ReplaceAll(fmt.Sprint(j.Params[name]), "/", "_")
		pairs = append(pairs, fmt.Sprintf("%s=%s", name, value))
	}
	return path.Join(j.Algorithm, strings.Join(pairs, ","))
}

func (j Job) String() string {
	return fmt.Sprintf("%s%s", j.Algorithm, j.Params)
}

func (j Job) Marshal() ([]byte, error) {
	data, err := json.Marshal(j)
	return data, errors.Trace(err)
}

// UnmarshalJob decodes a job. Numbers are decoded as float64 and read back through Params getters.
func UnmarshalJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, errors.Trace(err)
	}
	if j.Algorithm == "" {
		return Job{}, errors.NotValidf("job without algorithm")
	}
	return j, nil
}

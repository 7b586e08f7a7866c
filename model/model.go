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
	"github.com/gorse-io/gorse-tuner/base"
	"github.com/juju/errors"
)

// BaseModel holds hyper-parameters and the random generator of a model.
type BaseModel struct {
	Params    Params
	rng       base.RandomGenerator
	randState int64
}

// SetParams sets hyper-parameters and reseeds the random generator from random_state.
func (model *BaseModel) SetParams(params Params) {
	model.Params = params
	model.randState = model.Params.GetInt64(RandomState, 0)
	model.rng = base.NewRandomGenerator(model.randState)
}

func (model *BaseModel) GetParams() Params {
	return model.Params
}

func (model *BaseModel) GetRandomGenerator() base.RandomGenerator {
	return model.rng
}

// HyperParameters is the decoded, immutable hyper-parameter record of a factorization model.
type HyperParameters struct {
	NFactors     int
	Lr           float32
	UserReg      float32
	ItemReg      float32
	NEpochs      int
	TopN         int
	RecommendNew bool
	Insights     bool
	RandomState  int64
	Shuffle      bool
}

func DefaultHyperParameters() HyperParameters {
	return HyperParameters{
		NFactors:     10,
		Lr:           0.01,
		UserReg:      0.1,
		ItemReg:      0.1,
		NEpochs:      20,
		TopN:         10,
		RecommendNew: true,
	}
}

// NewHyperParameters decodes params on top of defaults. A required name missing from
// params, a value of the wrong type or a value out of range is a NotValid error.
func NewHyperParameters(params Params, required ...ParamName) (HyperParameters, error) {
	for _, name := range required {
		if _, exist := params[name]; !exist {
			return HyperParameters{}, errors.NotValidf("missing hyper-parameter %s", name)
		}
	}
	for name, value := range params {
		if err := checkType(name, value); err != nil {
			return HyperParameters{}, errors.Trace(err)
		}
	}
	d := DefaultHyperParameters()
	hp := HyperParameters{
		NFactors:     params.GetInt(NFactors, d.NFactors),
		Lr:           params.GetFloat32(Lr, d.Lr),
		UserReg:      params.GetFloat32(UserReg, d.UserReg),
		ItemReg:      params.GetFloat32(ItemReg, d.ItemReg),
		NEpochs:      params.GetInt(NEpochs, d.NEpochs),
		TopN:         params.GetInt(TopN, d.TopN),
		RecommendNew: params.GetBool(RecommendNew, d.RecommendNew),
		Insights:     params.GetBool(Insights, d.Insights),
		RandomState:  params.GetInt64(RandomState, d.RandomState),
		Shuffle:      params.GetBool(Shuffle, d.Shuffle),
	}
	switch {
	case hp.NFactors <= 0:
		return HyperParameters{}, errors.NotValidf("%s = %d", NFactors, hp.NFactors)
	case hp.Lr < 0:
		return HyperParameters{}, errors.NotValidf("%s = %v", Lr, hp.Lr)
	case hp.UserReg < 0 || hp.ItemReg < 0:
		return HyperParameters{}, errors.NotValidf("regularization %v/%v", hp.UserReg, hp.ItemReg)
	case hp.NEpochs < 0:
		return HyperParameters{}, errors.NotValidf("%s = %d", NEpochs, hp.NEpochs)
	case hp.TopN <= 0:
		return HyperParameters{}, errors.NotValidf("%s = %d", TopN, hp.TopN)
	}
	return hp, nil
}

func checkType(name ParamName, value interface{}) error {
	switch name {
	case NFactors, NEpochs, TopN, RandomState:
		switch v := value.(type) {
		case int, int64:
			return nil
		case float64:
			if v == float64(int64(v)) {
				return nil
			}
		}
	case Lr, UserReg, ItemReg:
		switch value.(type) {
		case float32, float64, int, int64:
			return nil
		}
	case RecommendNew, Insights, Shuffle:
		switch value.(type) {
		case bool, int, int64:
			return nil
		}
	default:
		return nil
	}
	return errors.NotValidf("hyper-parameter %s = %v", name, value)
}

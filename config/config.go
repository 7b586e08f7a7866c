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

package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorse-io/gorse-tuner/model"
	"github.com/juju/errors"
	"github.com/spf13/viper"
)

const (
	SearchModeGrid   = "grid"
	SearchModeRandom = "random"
	SearchModeTPE    = "tpe"

	StoragePOSIX = "posix"
	StorageS3    = "s3"
	StorageGCS   = "gcs"
	StorageAzure = "azure"
)

// Config is the configuration of a tuning run.
type Config struct {
	General    GeneralConfig                     `mapstructure:"general"`
	Algorithms []string                          `mapstructure:"algorithms" validate:"required,min=1,dive,required"`
	Params     map[string]map[string]interface{} `mapstructure:"params"`
	Storage    StorageConfig                     `mapstructure:"storage"`
}

type GeneralConfig struct {
	InputPath   string `mapstructure:"input_path" validate:"required"`
	CrossFold   int    `mapstructure:"cross_fold" validate:"gte=0"`
	ResultsPath string `mapstructure:"results_path" validate:"required"`
	Jobs        int    `mapstructure:"jobs" validate:"gte=0"`
	EvalJobs    int    `mapstructure:"eval_jobs" validate:"gte=0"`
	SearchMode  string `mapstructure:"search_mode" validate:"oneof=grid random tpe"`
	NumTrials   int    `mapstructure:"num_trials" validate:"gt=0"`
	RandomState int64  `mapstructure:"random_state"`
	Compress    bool   `mapstructure:"compress"`
	// FoldCacheTTL keeps loaded folds in memory for jobs sharing them. 0 disables the cache.
	FoldCacheTTL time.Duration `mapstructure:"fold_cache_ttl" validate:"gte=0"`
}

type StorageConfig struct {
	Type string `mapstructure:"type" validate:"oneof=posix s3 gcs azure"`
	// Database receives a row per finished job, e.g. "sqlite://results.db". Empty disables it.
	Database    string          `mapstructure:"database"`
	TablePrefix string          `mapstructure:"table_prefix"`
	S3          S3Config        `mapstructure:"s3"`
	GCS         GCSConfig       `mapstructure:"gcs"`
	Azure       AzureBlobConfig `mapstructure:"azure"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`
}

type AzureBlobConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Endpoint         string `mapstructure:"endpoint"`
}

func GetDefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			ResultsPath: "results",
			SearchMode:  SearchModeGrid,
			NumTrials:   10,
			RandomState: 1,
			EvalJobs:    1,
		},
		Algorithms: []string{"biased_fm"},
		Storage: StorageConfig{
			Type: StoragePOSIX,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [general]
	viper.SetDefault("general.cross_fold", defaultConfig.General.CrossFold)
	viper.SetDefault("general.results_path", defaultConfig.General.ResultsPath)
	viper.SetDefault("general.jobs", defaultConfig.General.Jobs)
	viper.SetDefault("general.eval_jobs", defaultConfig.General.EvalJobs)
	viper.SetDefault("general.search_mode", defaultConfig.General.SearchMode)
	viper.SetDefault("general.num_trials", defaultConfig.General.NumTrials)
	viper.SetDefault("general.random_state", defaultConfig.General.RandomState)
	viper.SetDefault("general.compress", defaultConfig.General.Compress)
	viper.SetDefault("general.fold_cache_ttl", defaultConfig.General.FoldCacheTTL)
	viper.SetDefault("algorithms", defaultConfig.Algorithms)
	// [storage]
	viper.SetDefault("storage.type", defaultConfig.Storage.Type)
}

type configBinding struct {
	key string
	env string
}

var bindings = []configBinding{
	{"general.input_path", "GORSE_TUNER_INPUT_PATH"},
	{"general.cross_fold", "GORSE_TUNER_CROSS_FOLD"},
	{"general.results_path", "GORSE_TUNER_RESULTS_PATH"},
	{"general.jobs", "GORSE_TUNER_JOBS"},
	{"general.eval_jobs", "GORSE_TUNER_EVAL_JOBS"},
	{"general.search_mode", "GORSE_TUNER_SEARCH_MODE"},
	{"storage.type", "GORSE_TUNER_STORAGE_TYPE"},
	{"storage.database", "GORSE_TUNER_DATABASE"},
	{"storage.s3.endpoint", "GORSE_TUNER_S3_ENDPOINT"},
	{"storage.s3.access_key_id", "GORSE_TUNER_S3_ACCESS_KEY_ID"},
	{"storage.s3.secret_access_key", "GORSE_TUNER_S3_SECRET_ACCESS_KEY"},
	{"storage.gcs.credentials_file", "GORSE_TUNER_GCS_CREDENTIALS_FILE"},
	{"storage.azure.connection_string", "GORSE_TUNER_AZURE_CONNECTION_STRING"},
}

// LoadConfig reads a TOML file, applies defaults and environment overrides, then validates the result.
func LoadConfig(path string) (*Config, error) {
	setDefault()
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}
	viper.SetConfigType("toml")
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Trace(err)
	}
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks field constraints and that every algorithm has a parameter table.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	for _, alg := range config.Algorithms {
		if _, exist := config.Params[strings.ToLower(alg)]; !exist {
			return errors.NotValidf("parameters of algorithm %s", alg)
		}
	}
	return nil
}

// ParamsGrid converts the parameter table of an algorithm into a grid. A scalar becomes a
// single candidate.
func (config *Config) ParamsGrid(alg string) (model.ParamsGrid, error) {
	table, exist := config.Params[strings.ToLower(alg)]
	if !exist {
		return nil, errors.NotFoundf("parameters of algorithm %s", alg)
	}
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	grid := make(model.ParamsGrid)
	for _, name := range names {
		switch value := table[name].(type) {
		case []interface{}:
			if len(value) == 0 {
				return nil, errors.NotValidf("empty candidates of %s.%s", alg, name)
			}
			grid.Add(model.ParamName(name), value...)
		case nil:
			return nil, errors.NotValidf("%s.%s", alg, name)
		default:
			grid.Add(model.ParamName(name), value)
		}
	}
	return grid, nil
}

func (config *Config) String() string {
	return fmt.Sprintf("input=%s cross_fold=%d mode=%s algorithms=%v",
		config.General.InputPath, config.General.CrossFold, config.General.SearchMode, config.Algorithms)
}

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

package main

import (
	"os"

	"github.com/gorse-io/gorse-tuner/base/log"
	"github.com/gorse-io/gorse-tuner/config"
	"github.com/gorse-io/gorse-tuner/dataset"
	"github.com/gorse-io/gorse-tuner/storage/blob"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var splitCommand = &cobra.Command{
	Use:   "split [ratings.csv]",
	Short: "Split a rating file into folds under the configured input path.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			return errors.Trace(err)
		}
		sep, _ := cmd.Flags().GetString("sep")
		header, _ := cmd.Flags().GetBool("header")
		testRatio, _ := cmd.Flags().GetFloat64("test-ratio")
		if sep == `\t` {
			sep = "\t"
		}
		if len([]rune(sep)) != 1 {
			return errors.NotValidf("separator %q", sep)
		}

		file, err := os.Open(args[0])
		if err != nil {
			return errors.Trace(err)
		}
		defer file.Close()
		stat, err := file.Stat()
		if err != nil {
			return errors.Trace(err)
		}
		pbReader := progressbar.NewReader(file, progressbar.NewOptions64(stat.Size(),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Loading ratings"),
			progressbar.OptionShowBytes(true)))
		raw, err := dataset.LoadRatingsCSV(&pbReader, []rune(sep)[0], header)
		if err != nil {
			return errors.Trace(err)
		}
		if expression, _ := cmd.Flags().GetString("filter"); expression != "" {
			filter, err := dataset.NewFilter(expression)
			if err != nil {
				return errors.Trace(err)
			}
			n := len(raw)
			if raw, err = filter.Apply(raw); err != nil {
				return errors.Trace(err)
			}
			log.Logger().Info("filter ratings", zap.String("filter", expression), zap.Int("n_removed", n-len(raw)))
		}
		folds, err := dataset.Split(raw, conf.General.CrossFold, testRatio, conf.General.RandomState)
		if err != nil {
			return errors.Trace(err)
		}

		store, err := blob.Open(conf.Storage, conf.General.InputPath)
		if err != nil {
			return errors.Trace(err)
		}
		bar := progressbar.NewOptions(len(folds),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Writing folds"))
		for _, fold := range folds {
			if err = dataset.WriteFold(store, fold); err != nil {
				return errors.Annotatef(err, "fold %s", fold.Name)
			}
			_ = bar.Add(1)
		}
		log.Logger().Info("split ratings",
			zap.Int("n_ratings", len(raw)),
			zap.Int("n_users", folds[0].CountUsers()),
			zap.Int("n_items", folds[0].CountItems()),
			zap.Int("n_folds", len(folds)))
		return nil
	},
}

func init() {
	splitCommand.Flags().String("sep", ",", `field separator, "\t" for tabs`)
	splitCommand.Flags().Bool("header", false, "skip the first line")
	splitCommand.Flags().Float64("test-ratio", 0.2, "ratio of test ratings when cross_fold is 0")
	splitCommand.Flags().String("filter", "", `keep ratings matching an expression over user, item and rating, e.g. "rating >= 3"`)
}

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
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorse-io/gorse-tuner/base"
	"github.com/gorse-io/gorse-tuner/base/log"
	"github.com/gorse-io/gorse-tuner/config"
	"github.com/gorse-io/gorse-tuner/dataset"
	"github.com/gorse-io/gorse-tuner/model/cf"
	"github.com/gorse-io/gorse-tuner/search"
	"github.com/gorse-io/gorse-tuner/storage/blob"
	"github.com/gorse-io/gorse-tuner/storage/record"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var searchCommand = &cobra.Command{
	Use:   "search",
	Short: "Train every configured combination and report averaged metrics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			return errors.Trace(err)
		}
		if cmd.Flags().Changed("jobs") {
			conf.General.Jobs, _ = cmd.Flags().GetInt("jobs")
		}
		if cmd.Flags().Changed("search-mode") {
			conf.General.SearchMode, _ = cmd.Flags().GetString("search-mode")
			if err = conf.Validate(); err != nil {
				return errors.Trace(err)
			}
		}

		input, err := blob.Open(conf.Storage, conf.General.InputPath)
		if err != nil {
			return errors.Annotate(err, "open input")
		}
		results, err := blob.Open(conf.Storage, conf.General.ResultsPath)
		if err != nil {
			return errors.Annotate(err, "open results")
		}

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			go func() {
				defer base.CheckPanic()
				log.Logger().Info("serve metrics", zap.String("addr", addr))
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(addr, mux); err != nil {
					log.Logger().Error("failed to serve metrics", zap.Error(err))
				}
			}()
		}

		var provider dataset.Provider = dataset.NewStoreProvider(input)
		if conf.General.FoldCacheTTL > 0 {
			cached := dataset.NewCachedProvider(provider, conf.General.FoldCacheTTL, uint64(max(conf.General.CrossFold, 1)))
			defer cached.Close()
			provider = cached
		}
		searcher := search.NewSearcher(conf, cf.DefaultRegistry(), provider, results)
		if conf.Storage.Database != "" {
			database, err := record.Open(conf.Storage.Database, conf.Storage.TablePrefix)
			if err != nil {
				return errors.Annotate(err, "open database")
			}
			defer database.Close()
			if err = database.Init(); err != nil {
				return errors.Trace(err)
			}
			runID := uuid.New().String()
			log.Logger().Info("record results", zap.String("run_id", runID))
			searcher.Log.SetRecorder(runID, database)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		start := time.Now()
		err = searcher.Run(ctx)
		if renderErr := searcher.Log.Render(cmd.OutOrStdout()); renderErr != nil {
			log.Logger().Error("failed to render results", zap.Error(renderErr))
		}
		if err != nil {
			return errors.Trace(err)
		}
		_, finished, failed := searcher.Stats()
		fields := []zap.Field{
			zap.Int64("n_jobs", finished),
			zap.Int64("n_failed", failed),
			zap.Duration("elapsed", time.Since(start)),
		}
		if best, ok := searcher.Log.Best(); ok {
			fields = append(fields, zap.String("best", best.Job.String()), zap.Float32("rmse", best.RMSE()))
		}
		log.Logger().Info("complete search", fields...)
		return nil
	},
}

func init() {
	searchCommand.Flags().Int("jobs", 0, "override the number of concurrent jobs")
	searchCommand.Flags().String("search-mode", "", "override the search mode (grid, random or tpe)")
	searchCommand.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
}

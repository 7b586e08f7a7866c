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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSucceed = "succeed"
	StatusFailed  = "failed"
	StatusInvalid = "invalid"
	StatusPanic   = "panic"
)

var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gorse_tuner",
		Subsystem: "search",
		Name:      "jobs_total",
		Help:      "Number of finished jobs.",
	}, []string{"algorithm", "status"})
	JobSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gorse_tuner",
		Subsystem: "search",
		Name:      "job_seconds",
		Help:      "Time spent on a job over all folds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"algorithm"})
	RunningJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gorse_tuner",
		Subsystem: "search",
		Name:      "running_jobs",
		Help:      "Number of jobs being trained.",
	})
	BestRMSE = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gorse_tuner",
		Subsystem: "search",
		Name:      "best_rmse",
		Help:      "Lowest averaged RMSE seen so far.",
	}, []string{"algorithm"})
)

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
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorse-io/gorse-tuner/base/log"
	"github.com/gorse-io/gorse-tuner/model/cf"
	"github.com/gorse-io/gorse-tuner/storage/record"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
)

// Result is the outcome of a job. Metrics are averaged over folds in the order of cf.MetricNames.
type Result struct {
	Job     Job
	Metrics []float32
	Elapsed time.Duration
	Err     error
}

func (r Result) RMSE() float32 {
	return r.Metrics[0]
}

// Recorder persists results outside of the process.
type Recorder interface {
	Insert(ctx context.Context, records ...record.Record) error
}

// CompletionLog is the sink shared by workers. Appends are serialized.
type CompletionLog struct {
	mu       sync.Mutex
	logger   *zap.Logger
	records  []Result
	runID    string
	recorder Recorder
}

// NewCompletionLog creates a log writing to logger, or to the search logger if nil.
func NewCompletionLog(logger *zap.Logger) *CompletionLog {
	if logger == nil {
		logger = log.SearchLogger()
	}
	return &CompletionLog{logger: logger}
}

// SetRecorder makes every following Append also insert a row tagged with runID.
func (l *CompletionLog) SetRecorder(runID string, recorder Recorder) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runID = runID
	l.recorder = recorder
}

func (l *CompletionLog) Append(r Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
	if l.recorder != nil {
		if err := l.recorder.Insert(context.Background(), toRecord(l.runID, r)); err != nil {
			l.logger.Error("failed to insert record", zap.String("algorithm", r.Job.Algorithm), zap.Error(err))
		}
	}
	if r.Err != nil {
		l.logger.Error("job failed",
			zap.String("algorithm", r.Job.Algorithm),
			zap.Any("params", r.Job.Params),
			zap.Duration("elapsed", r.Elapsed),
			zap.Error(r.Err))
		return
	}
	fields := []zap.Field{
		zap.String("algorithm", r.Job.Algorithm),
		zap.Any("params", r.Job.Params),
	}
	for i, name := range cf.MetricNames {
		if i < len(r.Metrics) {
			fields = append(fields, zap.Float32(name, r.Metrics[i]))
		}
	}
	fields = append(fields, zap.Duration("elapsed", r.Elapsed))
	l.logger.Info("training end", fields...)
}

func toRecord(runID string, r Result) record.Record {
	rec := record.Record{
		RunID:     runID,
		Algorithm: r.Job.Algorithm,
		Params:    r.Job.Params.String(),
		Elapsed:   r.Elapsed.Milliseconds(),
		CreatedAt: time.Now(),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	if len(r.Metrics) == len(cf.MetricNames) {
		rec.RMSE, rec.Loss, rec.F1 = r.Metrics[0], r.Metrics[1], r.Metrics[2]
		rec.HitRatio, rec.NDCG, rec.Precision = r.Metrics[3], r.Metrics[4], r.Metrics[5]
	}
	return rec
}

// Records returns results in completion order.
func (l *CompletionLog) Records() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	records := make([]Result, len(l.records))
	copy(records, l.records)
	return records
}

// Best returns the successful result with the lowest RMSE.
func (l *CompletionLog) Best() (Result, bool) {
	var (
		best  Result
		found bool
	)
	for _, r := range l.Records() {
		if r.Err != nil || len(r.Metrics) == 0 {
			continue
		}
		if !found || r.RMSE() < best.RMSE() {
			best, found = r, true
		}
	}
	return best, found
}

// Render writes a table of results.
func (l *CompletionLog) Render(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	header := append([]string{"#", "Algorithm"}, cf.MetricNames...)
	table.Header(append(header, "Elapsed", "Params"))
	for i, r := range l.Records() {
		row := []string{fmt.Sprint(i), r.Job.Algorithm}
		for j := range cf.MetricNames {
			if r.Err == nil && j < len(r.Metrics) {
				row = append(row, fmt.Sprintf("%.4f", r.Metrics[j]))
			} else {
				row = append(row, "-")
			}
		}
		row = append(row, r.Elapsed.Round(time.Millisecond).String(), r.Job.Params.String())
		if err := table.Append(row); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

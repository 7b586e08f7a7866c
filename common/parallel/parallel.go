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

package parallel

import (
	"context"

	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"
)

// Parallel runs tasks 0..nJobs-1 on nWorkers workers. worker receives the id of the
// executing worker and the task id. The first failure cancels the remaining tasks and
// is returned once every worker has stopped. A panicking task fails with its panic value.
func Parallel(ctx context.Context, nJobs, nWorkers int, worker func(workerId, jobId int) error) error {
	if nWorkers <= 1 {
		for jobId := range nJobs {
			if err := ctx.Err(); err != nil {
				return errors.Trace(err)
			}
			if err := runTask(worker, 0, jobId); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	}
	group, groupCtx := errgroup.WithContext(ctx)
	tasks := make(chan int)
	group.Go(func() error {
		defer close(tasks)
		for jobId := range nJobs {
			select {
			case <-groupCtx.Done():
				return nil
			case tasks <- jobId:
			}
		}
		return nil
	})
	for workerId := range nWorkers {
		group.Go(func() error {
			for jobId := range tasks {
				if err := runTask(worker, workerId, jobId); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(ctx.Err())
}

func runTask(worker func(workerId, jobId int) error, workerId, jobId int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in task %d: %v", jobId, r)
		}
	}()
	return worker(workerId, jobId)
}

// Split a into at most n consecutive chunks whose sizes differ by at most one.
func Split[T any](a []T, n int) [][]T {
	if len(a) == 0 || n <= 0 {
		return nil
	}
	n = min(n, len(a))
	chunks := make([][]T, 0, n)
	for i := range n {
		begin, end := i*len(a)/n, (i+1)*len(a)/n
		chunks = append(chunks, a[begin:end])
	}
	return chunks
}

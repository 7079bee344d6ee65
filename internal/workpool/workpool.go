// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package workpool provides the one concurrency primitive this module
// needs: bounded data-parallel fan-out followed by a join. There is no
// producer/consumer queue and no goroutine outlives a single call to Run.
package workpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run executes n independent tasks with at most k of them in flight at
// once, then waits for all of them to finish. The first non-nil error
// returned by any task is returned to the caller after every task has
// completed (or been skipped following a prior failure's cancellation).
//
// Run is used for every k-threaded code path in this module: compression
// phases 1 and 3, and every CompressedMatrix kernel. Tasks must write to
// disjoint output locations -- Run performs no locking of its own.
func Run(k, n int, task func(i int) error) error {
	if n <= 0 {
		return nil
	}
	if k <= 1 {
		for i := 0; i < n; i++ {
			if err := task(i); err != nil {
				return err
			}
		}
		return nil
	}
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(k)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return task(i)
		})
	}
	return g.Wait()
}

// RunEach is Run specialized for a slice of arbitrary items, avoiding
// an index-based re-lookup at call sites that already have a slice.
func RunEach[T any](k int, items []T, task func(item T) error) error {
	return Run(k, len(items), func(i int) error {
		return task(items[i])
	})
}

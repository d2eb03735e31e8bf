// Copyright 2025 bookii
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/stephenafamo/scan"
	"github.com/stretchr/testify/require"

	"github.com/bookii/qiitaviewer/modules/db"
)

// recordingQuerier records every exec'd statement in order.
type recordingQuerier struct {
	steps   *[]string
	execErr error
}

func (q *recordingQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	*q.steps = append(*q.steps, query)
	if q.execErr != nil {
		return nil, q.execErr
	}
	return driver.RowsAffected(1), nil
}

func (q *recordingQuerier) QueryContext(ctx context.Context, query string, args ...any) (scan.Rows, error) {
	return nil, errors.New("unexpected query")
}

type fakePool struct {
	q db.Querier
}

func (p *fakePool) HealthCheck() error                  { return nil }
func (p *fakePool) MigrateUp(ctx context.Context) error { return nil }
func (p *fakePool) Writer() db.Querier                  { return p.q }
func (p *fakePool) Shutdown(context.Context) error      { return nil }

func (p *fakePool) WithTx(ctx context.Context, fn db.TxFn) error {
	return fn(ctx, p.q)
}

func (p *fakePool) WithTimeoutTx(ctx context.Context, _ time.Duration, fn db.TxFn) error {
	return p.WithTx(ctx, fn)
}

func TestAdvisoryMutationLockAcquiresBeforeTask(t *testing.T) {
	var steps []string
	pool := &fakePool{q: &recordingQuerier{steps: &steps}}

	lock := NewAdvisoryMutationLock(pool, "searchHistories")
	err := lock(context.Background(), func(ctx context.Context) error {
		steps = append(steps, "task")
		return nil
	})
	require.NoError(t, err)

	require.Len(t, steps, 2)
	require.Contains(t, steps[0], "pg_advisory_xact_lock")
	require.Equal(t, "task", steps[1])
}

func TestAdvisoryMutationLockPropagatesTaskError(t *testing.T) {
	var steps []string
	pool := &fakePool{q: &recordingQuerier{steps: &steps}}

	sentinel := errors.New("flush failed")
	lock := NewAdvisoryMutationLock(pool, "searchHistories")
	err := lock(context.Background(), func(ctx context.Context) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}

func TestAdvisoryMutationLockAcquireFailureSkipsTask(t *testing.T) {
	var steps []string
	pool := &fakePool{q: &recordingQuerier{steps: &steps, execErr: errors.New("connection reset")}}

	taskRan := false
	lock := NewAdvisoryMutationLock(pool, "searchHistories")
	err := lock(context.Background(), func(ctx context.Context) error {
		taskRan = true
		return nil
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "advisory lock")
	require.False(t, taskRan)
}

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
	"fmt"

	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"

	"github.com/bookii/qiitaviewer/core/qiita/domain"
	"github.com/bookii/qiitaviewer/modules/db"
)

// NewAdvisoryMutationLock serializes cross-process mutations on name with
// pg_advisory_xact_lock. The lock is transaction-scoped: the task runs
// inside the transaction that holds it, and the server releases it on
// commit or rollback, so a crashed holder cannot wedge other writers.
func NewAdvisoryMutationLock(pool db.ConnectionPool, name string) domain.MutationLock {
	return func(ctx context.Context, task func(context.Context) error) error {
		err := pool.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
			lock := psql.RawQuery(`SELECT pg_advisory_xact_lock(hashtext(?))`, name)
			if _, err := bob.Exec(ctx, q, lock); err != nil {
				return fmt.Errorf("acquire advisory lock %q: %w", name, err)
			}
			return task(ctx)
		})
		if err != nil {
			return fmt.Errorf("pglock: %w", err)
		}
		return nil
	}
}

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
	"embed"
	"errors"
	"fmt"

	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/scan"

	"github.com/bookii/qiitaviewer/modules/db"
)

// Migrations holds the embedded schema for this adapter. Pass it to
// postgres.New via PostgresOptions{Migrations: pg.Migrations,
// MigrationsDir: pg.MigrationsDir} and call MigrateUp before first use.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"

// DefaultTable is the table created by the embedded migration.
const DefaultTable = "kv_store"

var _ db.KV = (*PostgresKV)(nil)

// PostgresKV implements db.KV on a single keyed bytea column. Atomicity of
// the read-modify-write comes from a row-locking transaction rather than a
// server-side script.
type PostgresKV struct {
	table string
	pool  db.ConnectionPool
}

func NewPostgresKV(pool db.ConnectionPool, table string) *PostgresKV {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresKV{table: table, pool: pool}
}

// AtomicGet returns the stored bytes for key, or nil if absent.
func (k *PostgresKV) AtomicGet(ctx context.Context, key string) (any, error) {
	raw := fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, k.table)
	q := psql.RawQuery(raw, key)

	value, err := bob.One(ctx, k.pool.Writer(), q, scan.SingleColumnMapper[[]byte])
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("pgkv: get %q: %w", key, err)
	}
	return value, nil
}

// AtomicSet stores value under key and returns the previous bytes. The
// previous value is read under FOR UPDATE in the same transaction as the
// upsert, so concurrent writers serialize per key.
func (k *PostgresKV) AtomicSet(ctx context.Context, key string, value any) (any, error) {
	bs, err := encodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("pgkv: set %q: %w", key, err)
	}

	var (
		prev  []byte
		found bool
	)
	err = k.pool.WithTx(ctx, func(ctx context.Context, q db.Querier) error {
		sel := psql.RawQuery(
			fmt.Sprintf(`SELECT value FROM %s WHERE key = $1 FOR UPDATE`, k.table), key)
		row, err := bob.One(ctx, q, sel, scan.SingleColumnMapper[[]byte])
		switch {
		case err == nil:
			prev = row
			found = true
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		up := psql.RawQuery(fmt.Sprintf(`
			INSERT INTO %s (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE
			SET value = EXCLUDED.value, updated_at = now()`, k.table), key, bs)
		_, err = bob.Exec(ctx, q, up)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pgkv: set %q: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return prev, nil
}

// AtomicDelete removes key. Deleting an absent key is a success.
func (k *PostgresKV) AtomicDelete(ctx context.Context, key string) error {
	q := psql.RawQuery(fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, k.table), key)
	if _, err := bob.Exec(ctx, k.pool.Writer(), q); err != nil {
		return fmt.Errorf("pgkv: delete %q: %w", key, err)
	}
	return nil
}

func encodeValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", value)
	}
}

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

package db

import (
	"context"
	"time"

	"github.com/stephenafamo/bob"
)

type (
	TxFn func(ctx context.Context, q Querier) error

	// Querier is an interface for database queries
	// Uses bob.Executor so both bob.DB and bob.Tx conform
	Querier interface {
		bob.Executor
	}

	// ConnectionPool is the SQL-backed storage handle used by the Postgres
	// KV adapter. Compared to a full read-replica setup this stays single
	// primary: history blobs are tiny and mutations are user-triggered.
	ConnectionPool interface {
		HealthManager
		MigrationManager
		TxManager

		// Writer returns the primary database connection.
		Writer() Querier

		// Shutdown attempts to gracefully close all underlying connections.
		Shutdown(context.Context) error
	}

	HealthManager interface {
		HealthCheck() error
	}

	MigrationManager interface {
		// MigrateUp applies the adapter's embedded migrations.
		MigrateUp(ctx context.Context) error
	}

	TxManager interface {
		WithTx(ctx context.Context, fn TxFn) error
		WithTimeoutTx(ctx context.Context, timeout time.Duration, fn TxFn) error
	}

	// KV is the blob-storage port the search-history store persists through.
	//
	// A missing key is reported as a nil value, never as an error; callers
	// treat it as "nothing stored yet".
	KV interface {
		// AtomicGet returns the raw stored bytes for key, or nil if absent.
		AtomicGet(context.Context, string) (any, error)

		// AtomicSet stores value under key and returns the previous raw
		// bytes (nil if the key was absent). The read-modify-write is a
		// single atomic step in every adapter.
		AtomicSet(context.Context, string, any) (any, error)

		// AtomicDelete removes key. Deleting an absent key is a success.
		AtomicDelete(context.Context, string) error
	}
)

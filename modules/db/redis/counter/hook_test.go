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

package counter

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/redis/rueidis/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return log, &buf
}

func TestInstrumentedCounterStoreGetThroughHook(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "qiitaviewer:budget:token")).
		Return(mock.Result(mock.RedisString("5")))

	log, buf := newTestLogger()
	store := NewInstrumentedRedisCounterStore(client, "qiitaviewer:budget", log)

	n, err := store.Get(context.Background(), "token")
	require.NoError(t, err)
	require.EqualValues(t, 5, n)

	out := buf.String()
	require.Contains(t, out, "redis command")
	require.Contains(t, out, "GET")
	require.NotContains(t, out, "redis command failed")
}

func TestInstrumentedCounterStoreNilReplyIsNotAFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "qiitaviewer:budget:absent")).
		Return(mock.Result(mock.RedisNil()))

	log, buf := newTestLogger()
	store := NewInstrumentedRedisCounterStore(client, "qiitaviewer:budget", log)

	n, err := store.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Zero(t, n)
	require.NotContains(t, buf.String(), "redis command failed")
}

func TestInstrumentedCounterStoreNilLoggerFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mock.NewClient(ctrl)
	client.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "k")).
		Return(mock.Result(mock.RedisString("1")))

	store := NewInstrumentedRedisCounterStore(client, "", nil)

	n, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

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

package qiitaviewer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookii/qiitaviewer/core/qiita/adapters/qiitaapi"
	"github.com/bookii/qiitaviewer/core/qiita/domain"
	"github.com/bookii/qiitaviewer/modules/appconfig"
)

func fileBackendConfig(dir string) *appconfig.Config {
	return &appconfig.Config{
		Env: "test",
		Qiita: qiitaapi.Config{
			BaseURL: "https://qiita.com",
			PerPage: 20,
			Timeout: 5 * time.Second,
			RPS:     10,
			Burst:   10,
		},
		History: appconfig.HistoryConfig{
			Backend: appconfig.HistoryBackendFile,
			Dir:     dir,
		},
	}
}

func TestNewFileBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	app, err := New(ctx, fileBackendConfig(dir))
	require.NoError(t, err)

	require.NoError(t, app.SaveSearchHistory(ctx, "alice"))
	require.NoError(t, app.SaveSearchHistory(ctx, "bob"))

	got, err := app.SearchHistories(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.SearchHistory{{UserID: "bob"}, {UserID: "alice"}}, got)

	require.NoError(t, app.Close(ctx))

	// a fresh App on the same dir sees the persisted entries
	app2, err := New(ctx, fileBackendConfig(dir))
	require.NoError(t, err)
	defer app2.Close(ctx)

	got, err = app2.SearchHistories(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.SearchHistory{{UserID: "bob"}, {UserID: "alice"}}, got)
}

func TestNewFileBackendDefaultDir(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("config dir override relies on unix env vars")
	}

	ctx := context.Background()
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)
	if runtime.GOOS == "darwin" {
		t.Setenv("HOME", base)
	}

	cfg := fileBackendConfig("")
	app, err := New(ctx, cfg)
	require.NoError(t, err)
	defer app.Close(ctx)

	require.NoError(t, app.SaveSearchHistory(ctx, "alice"))

	confDir, err := os.UserConfigDir()
	require.NoError(t, err)
	blob := filepath.Join(confDir, "qiitaviewer", "searchHistories.json")
	_, err = os.Stat(blob)
	require.NoError(t, err, "expected history blob at %s", blob)
}

func TestCloseIsRepeatable(t *testing.T) {
	ctx := context.Background()

	app, err := New(ctx, fileBackendConfig(t.TempDir()))
	require.NoError(t, err)

	require.NoError(t, app.Close(ctx))
	require.NoError(t, app.Close(ctx))
}

func TestNewRejectsUnresolvableConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on unsetting unix config env vars")
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "")

	_, err := New(context.Background(), fileBackendConfig(""))
	require.Error(t, err)
}

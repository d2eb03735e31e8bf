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

package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bookii/qiitaviewer/modules/db"
)

var _ db.KV = (*FileKV)(nil)

// FileKV is a directory-backed implementation of db.KV. Each key is stored
// as a single JSON-ish blob file under dir, written via a temp file plus
// rename so a crashed write never leaves a torn blob behind.
//
// It is the default backend for locally persisted state (the search
// history); no external service is needed.
type FileKV struct {
	dir string

	// mu serializes writers within this process. Cross-process atomicity
	// comes from the rename; read-modify-write across processes is the
	// caller's concern.
	mu sync.Mutex
}

// NewFileKV constructs a FileKV rooted at dir, creating it if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		return nil, errors.New("file kv: dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file kv: create dir %q: %w", dir, err)
	}
	return &FileKV{dir: dir}, nil
}

// path maps a key to its blob file. Path separators are flattened so a key
// can never escape the root directory.
func (f *FileKV) path(key string) string {
	safe := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(key)
	return filepath.Join(f.dir, safe+".json")
}

// AtomicGet implements db.KV.AtomicGet.
//
//   - Returns []byte (as `any`) on success
//   - Returns (nil, nil) if the key does not exist
func (f *FileKV) AtomicGet(_ context.Context, key string) (any, error) {
	bs, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Key missing – treat as nil value.
			return nil, nil
		}
		return nil, fmt.Errorf("file kv: AtomicGet %q failed: %w", key, err)
	}
	return bs, nil
}

// AtomicSet implements db.KV.AtomicSet. The previous blob (if any) is read
// under the writer lock before the rename commits the new one.
func (f *FileKV) AtomicSet(_ context.Context, key string, value any) (any, error) {
	bs, err := encodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("file kv: encode value for key %q: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.path(key)

	var prev []byte
	old, err := os.ReadFile(target)
	switch {
	case err == nil:
		prev = old
	case errors.Is(err, fs.ErrNotExist):
		// No previous value.
	default:
		return nil, fmt.Errorf("file kv: AtomicSet read previous %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(f.dir, ".kv-*")
	if err != nil {
		return nil, fmt.Errorf("file kv: AtomicSet %q: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(bs); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("file kv: AtomicSet write %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("file kv: AtomicSet sync %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("file kv: AtomicSet close %q: %w", key, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("file kv: AtomicSet commit %q: %w", key, err)
	}

	if prev == nil {
		return nil, nil
	}
	return prev, nil
}

// AtomicDelete implements db.KV.AtomicDelete.
func (f *FileKV) AtomicDelete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file kv: AtomicDelete %q: %w", key, err)
	}
	return nil
}

// encodeValue serializes a value into blob bytes.
//
//   - []byte → as-is
//   - string → raw bytes
func encodeValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, errors.New("file kv: nil values are not allowed")
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("file kv: unsupported value type %T", v)
	}
}

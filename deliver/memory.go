package deliver

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Transport, used for dry runs and tests.
type Memory struct {
	mu    sync.Mutex
	files map[string]RemoteFile
	data  map[string][]byte
	// Puts records every attempted Put path in order, including failed ones.
	Puts []string
	// Fail, if set, is consulted before each Put; a non-nil result fails
	// the write without modifying the file.
	Fail func(remotePath string) error
	Now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		files: map[string]RemoteFile{},
		data:  map[string][]byte{},
		Now:   time.Now,
	}
}

func (m *Memory) Put(ctx context.Context, content []byte, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts = append(m.Puts, remotePath)
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Fail != nil {
		if err := m.Fail(remotePath); err != nil {
			return err
		}
	}
	m.store(remotePath, content, m.Now())
	return nil
}

func (m *Memory) store(remotePath string, content []byte, modTime time.Time) {
	m.data[remotePath] = append([]byte(nil), content...)
	m.files[remotePath] = RemoteFile{Path: remotePath, Size: int64(len(content)), ModTime: modTime}
}

// Add places a file as if the lidar had written it.
func (m *Memory) Add(remotePath string, content []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(remotePath, content, modTime)
}

// Contents returns the file at remotePath, or nil if it does not exist.
func (m *Memory) Contents(remotePath string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[remotePath]
}

func (m *Memory) List(ctx context.Context, dir string) ([]RemoteFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []RemoteFile
	for p, f := range m.files {
		if path.Dir(p)+"/" == prefix {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *Memory) Get(ctx context.Context, remotePath string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := m.data[remotePath]
	if !ok {
		return nil, fmt.Errorf("%q: %w", remotePath, os.ErrNotExist)
	}
	return append([]byte(nil), d...), nil
}

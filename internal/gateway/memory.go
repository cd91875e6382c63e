package gateway

import (
	"context"
	"sync"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
)

type memFile struct {
	content  string
	modified time.Time
}

// MemoryGateway keeps files in process memory. It backs tests and the
// "memory" storage backend.
type MemoryGateway struct {
	mu    sync.RWMutex
	files map[string]map[string]memFile
	now   func() time.Time
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		files: make(map[string]map[string]memFile),
		now:   time.Now,
	}
}

func (m *MemoryGateway) ListFiles(ctx context.Context, directory string) ([]FileInfo, error) {
	dir := cleanDir(directory)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]FileInfo, 0, len(m.files[dir]))
	for name, f := range m.files[dir] {
		out = append(out, FileInfo{
			Name:         name,
			Path:         joinPath(dir, name),
			Size:         int64(len(f.content)),
			ModifiedDate: f.modified,
		})
	}
	dirs := make([]string, 0, len(m.files))
	for d := range m.files {
		dirs = append(dirs, d)
	}
	out = appendDirs(out, dir, dirs)
	sortListing(out)
	return out, nil
}

func (m *MemoryGateway) ReadFile(ctx context.Context, filePath string) (string, error) {
	dir, name := splitPath(filePath)

	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[dir][name]
	if !ok {
		return "", apperrors.NewNotFoundError(joinPath(dir, name))
	}
	return f.content, nil
}

func (m *MemoryGateway) WriteFile(ctx context.Context, directory, fileName, content string, overwrite bool) (WriteResult, error) {
	dir := cleanDir(directory)

	m.mu.Lock()
	defer m.mu.Unlock()

	files, ok := m.files[dir]
	if !ok {
		files = make(map[string]memFile)
		m.files[dir] = files
	}
	if _, exists := files[fileName]; exists && !overwrite {
		return WriteResult{}, apperrors.NewAlreadyExistsError(joinPath(dir, fileName))
	}
	files[fileName] = memFile{content: content, modified: m.now()}
	return WriteResult{SavedAs: fileName}, nil
}

func (m *MemoryGateway) Exists(ctx context.Context, name, directory string) (bool, error) {
	dir := cleanDir(directory)

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.files[dir][name]
	return ok, nil
}

func (m *MemoryGateway) DeleteFile(ctx context.Context, filePath, directory string) error {
	dir, name := resolvePath(filePath, directory)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[dir][name]; !ok {
		return apperrors.NewNotFoundError(joinPath(dir, name))
	}
	delete(m.files[dir], name)
	return nil
}

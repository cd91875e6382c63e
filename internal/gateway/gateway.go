// Package gateway is the storage boundary of the engine. Package files and
// template documents are read and written only through a Gateway.
package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"sqpr-engine/internal/common/config"
	"sqpr-engine/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// FileInfo describes one entry of a directory listing.
type FileInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ModifiedDate time.Time `json:"modifiedDate"`
	IsDirectory  bool      `json:"isDirectory"`
}

// WriteResult reports the name a file was stored under.
type WriteResult struct {
	SavedAs string `json:"savedAs"`
}

// Gateway stores files in directories. Implementations return NOT_FOUND for
// missing files and wrap backend faults as TRANSPORT_ERROR.
type Gateway interface {
	ListFiles(ctx context.Context, directory string) ([]FileInfo, error)
	ReadFile(ctx context.Context, filePath string) (string, error)

	// WriteFile stores content as directory/fileName. With overwrite=false an
	// existing file fails with ALREADY_EXISTS. Callers naming files with
	// random 8-hex identifiers get no collision check against the listing
	// and no retry: a clash surfaces as ALREADY_EXISTS for that one file.
	WriteFile(ctx context.Context, directory, fileName, content string, overwrite bool) (WriteResult, error)

	Exists(ctx context.Context, name, directory string) (bool, error)

	// DeleteFile removes filePath. When directory is set, filePath may be a
	// bare file name inside it.
	DeleteFile(ctx context.Context, filePath, directory string) error
}

// New builds the gateway selected by cfg.Backend. The redis and postgres
// backends need their client; the other may be nil.
func New(cfg config.StorageConfig, rdb *redis.Client, db *sql.DB, log logger.Logger) (Gateway, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return NewMemoryGateway(), nil
	case config.BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis storage backend requires a redis client")
		}
		return NewRedisGateway(rdb, cfg.KeyPrefix, log), nil
	case config.BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres storage backend requires a database")
		}
		return NewPostgresGateway(db, log), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// cleanDir maps every directory spelling to one rooted form.
func cleanDir(dir string) string {
	return path.Clean("/" + dir)
}

// splitPath splits a file path into its clean directory and base name.
func splitPath(filePath string) (string, string) {
	dir, name := path.Split(path.Clean("/" + filePath))
	return cleanDir(dir), name
}

func resolvePath(filePath, directory string) (string, string) {
	if directory != "" && !strings.Contains(filePath, "/") {
		return cleanDir(directory), filePath
	}
	return splitPath(filePath)
}

func joinPath(dir, name string) string {
	return path.Join(cleanDir(dir), name)
}

// childDir returns the first path segment of sub below parent, if sub lies
// strictly below parent.
func childDir(parent, sub string) (string, bool) {
	prefix := parent
	if prefix != "/" {
		prefix += "/"
	}
	if sub == parent || !strings.HasPrefix(sub, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(sub, prefix)
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return rest, rest != ""
}

// sortListing puts directories first, then files, each by name.
func sortListing(files []FileInfo) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].IsDirectory != files[j].IsDirectory {
			return files[i].IsDirectory
		}
		return files[i].Name < files[j].Name
	})
}

// appendDirs adds one directory entry per distinct child of dir among dirs.
func appendDirs(files []FileInfo, dir string, dirs []string) []FileInfo {
	seen := make(map[string]struct{})
	for _, d := range dirs {
		child, ok := childDir(dir, cleanDir(d))
		if !ok {
			continue
		}
		if _, dup := seen[child]; dup {
			continue
		}
		seen[child] = struct{}{}
		files = append(files, FileInfo{Name: child, Path: joinPath(dir, child), IsDirectory: true})
	}
	return files
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const backendRedis = "redis"

// redisRecord is the hash field value stored per file.
type redisRecord struct {
	Content    string    `json:"content"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// RedisGateway stores each directory as a hash of file name to record and
// tracks known directories in a set.
type RedisGateway struct {
	client *redis.Client
	prefix string
	logger logger.Logger
	now    func() time.Time
}

func NewRedisGateway(client *redis.Client, prefix string, log logger.Logger) *RedisGateway {
	if prefix == "" {
		prefix = "sqpr"
	}
	return &RedisGateway{
		client: client,
		prefix: prefix,
		logger: log.WithFields(map[string]interface{}{logger.FieldBackend: backendRedis}),
		now:    time.Now,
	}
}

func (g *RedisGateway) filesKey(dir string) string {
	return fmt.Sprintf("%s:files:%s", g.prefix, dir)
}

func (g *RedisGateway) dirsKey() string {
	return g.prefix + ":dirs"
}

func (g *RedisGateway) ListFiles(ctx context.Context, directory string) ([]FileInfo, error) {
	dir := cleanDir(directory)

	entries, err := g.client.HGetAll(ctx, g.filesKey(dir)).Result()
	if err != nil {
		return nil, apperrors.NewTransportError(backendRedis, err)
	}
	out := make([]FileInfo, 0, len(entries))
	for name, raw := range entries {
		var rec redisRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			g.logger.Warn("skipping unreadable file record", map[string]interface{}{
				logger.FieldFileName:  name,
				logger.FieldDirectory: dir,
				"error":               err,
			})
			continue
		}
		out = append(out, FileInfo{
			Name:         name,
			Path:         joinPath(dir, name),
			Size:         int64(len(rec.Content)),
			ModifiedDate: rec.ModifiedAt,
		})
	}

	dirs, err := g.client.SMembers(ctx, g.dirsKey()).Result()
	if err != nil {
		return nil, apperrors.NewTransportError(backendRedis, err)
	}
	out = appendDirs(out, dir, dirs)
	sortListing(out)
	return out, nil
}

func (g *RedisGateway) ReadFile(ctx context.Context, filePath string) (string, error) {
	dir, name := splitPath(filePath)

	raw, err := g.client.HGet(ctx, g.filesKey(dir), name).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.NewNotFoundError(joinPath(dir, name))
	}
	if err != nil {
		return "", apperrors.NewTransportError(backendRedis, err)
	}
	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return "", apperrors.NewTransportError(backendRedis, fmt.Errorf("decode %s: %w", joinPath(dir, name), err))
	}
	return rec.Content, nil
}

func (g *RedisGateway) WriteFile(ctx context.Context, directory, fileName, content string, overwrite bool) (WriteResult, error) {
	dir := cleanDir(directory)
	payload, err := json.Marshal(redisRecord{Content: content, ModifiedAt: g.now().UTC()})
	if err != nil {
		return WriteResult{}, fmt.Errorf("encode file record: %w", err)
	}

	key := g.filesKey(dir)
	if overwrite {
		err = g.client.HSet(ctx, key, fileName, payload).Err()
	} else {
		var created bool
		created, err = g.client.HSetNX(ctx, key, fileName, payload).Result()
		if err == nil && !created {
			return WriteResult{}, apperrors.NewAlreadyExistsError(joinPath(dir, fileName))
		}
	}
	if err != nil {
		return WriteResult{}, apperrors.NewTransportError(backendRedis, err)
	}

	if err := g.client.SAdd(ctx, g.dirsKey(), dir).Err(); err != nil {
		return WriteResult{}, apperrors.NewTransportError(backendRedis, err)
	}

	g.logger.Debug("file written", map[string]interface{}{
		logger.FieldFileName:  fileName,
		logger.FieldDirectory: dir,
		"bytes":               len(content),
	})
	return WriteResult{SavedAs: fileName}, nil
}

func (g *RedisGateway) Exists(ctx context.Context, name, directory string) (bool, error) {
	ok, err := g.client.HExists(ctx, g.filesKey(cleanDir(directory)), name).Result()
	if err != nil {
		return false, apperrors.NewTransportError(backendRedis, err)
	}
	return ok, nil
}

func (g *RedisGateway) DeleteFile(ctx context.Context, filePath, directory string) error {
	dir, name := resolvePath(filePath, directory)

	n, err := g.client.HDel(ctx, g.filesKey(dir), name).Result()
	if err != nil {
		return apperrors.NewTransportError(backendRedis, err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(joinPath(dir, name))
	}
	return nil
}

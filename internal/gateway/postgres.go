package gateway

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "sqpr-engine/internal/common/errors"
	"sqpr-engine/internal/common/logger"
)

const backendPostgres = "postgres"

const createFilesTable = `CREATE TABLE IF NOT EXISTS package_files (
	directory   TEXT        NOT NULL,
	name        TEXT        NOT NULL,
	content     TEXT        NOT NULL,
	size        BIGINT      NOT NULL,
	modified_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (directory, name)
)`

const (
	queryListFiles = `SELECT directory, name, size, modified_at FROM package_files
		WHERE directory = $1 OR directory LIKE $2 ORDER BY directory, name`
	queryReadFile   = `SELECT content FROM package_files WHERE directory = $1 AND name = $2`
	queryExists     = `SELECT EXISTS(SELECT 1 FROM package_files WHERE directory = $1 AND name = $2)`
	queryDeleteFile = `DELETE FROM package_files WHERE directory = $1 AND name = $2`
	queryInsertFile = `INSERT INTO package_files (directory, name, content, size, modified_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (directory, name) DO NOTHING`
	queryUpsertFile = `INSERT INTO package_files (directory, name, content, size, modified_at)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT (directory, name)
		DO UPDATE SET content = EXCLUDED.content, size = EXCLUDED.size, modified_at = EXCLUDED.modified_at`
)

// PostgresGateway stores files as rows of the package_files table.
type PostgresGateway struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

func NewPostgresGateway(db *sql.DB, log logger.Logger) *PostgresGateway {
	return &PostgresGateway{
		db:     db,
		logger: log.WithFields(map[string]interface{}{logger.FieldBackend: backendPostgres}),
		now:    time.Now,
	}
}

// EnsureSchema creates the package_files table when it does not exist.
func (g *PostgresGateway) EnsureSchema(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, createFilesTable); err != nil {
		return apperrors.NewTransportError(backendPostgres, err)
	}
	return nil
}

func (g *PostgresGateway) ListFiles(ctx context.Context, directory string) ([]FileInfo, error) {
	dir := cleanDir(directory)
	below := dir + "/%"
	if dir == "/" {
		below = "/%"
	}

	rows, err := g.db.QueryContext(ctx, queryListFiles, dir, below)
	if err != nil {
		return nil, apperrors.NewTransportError(backendPostgres, err)
	}
	defer rows.Close()

	var (
		out  []FileInfo
		dirs []string
	)
	for rows.Next() {
		var (
			rowDir, name string
			size         int64
			modified     time.Time
		)
		if err := rows.Scan(&rowDir, &name, &size, &modified); err != nil {
			return nil, apperrors.NewTransportError(backendPostgres, err)
		}
		if rowDir != dir {
			dirs = append(dirs, rowDir)
			continue
		}
		out = append(out, FileInfo{
			Name:         name,
			Path:         joinPath(dir, name),
			Size:         size,
			ModifiedDate: modified,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewTransportError(backendPostgres, err)
	}

	out = appendDirs(out, dir, dirs)
	sortListing(out)
	return out, nil
}

func (g *PostgresGateway) ReadFile(ctx context.Context, filePath string) (string, error) {
	dir, name := splitPath(filePath)

	var content string
	err := g.db.QueryRowContext(ctx, queryReadFile, dir, name).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NewNotFoundError(joinPath(dir, name))
	}
	if err != nil {
		return "", apperrors.NewTransportError(backendPostgres, err)
	}
	return content, nil
}

func (g *PostgresGateway) WriteFile(ctx context.Context, directory, fileName, content string, overwrite bool) (WriteResult, error) {
	dir := cleanDir(directory)
	query := queryInsertFile
	if overwrite {
		query = queryUpsertFile
	}

	res, err := g.db.ExecContext(ctx, query, dir, fileName, content, int64(len(content)), g.now().UTC())
	if err != nil {
		return WriteResult{}, apperrors.NewTransportError(backendPostgres, err)
	}
	if !overwrite {
		n, err := res.RowsAffected()
		if err != nil {
			return WriteResult{}, apperrors.NewTransportError(backendPostgres, err)
		}
		if n == 0 {
			return WriteResult{}, apperrors.NewAlreadyExistsError(joinPath(dir, fileName))
		}
	}

	g.logger.Debug("file written", map[string]interface{}{
		logger.FieldFileName:  fileName,
		logger.FieldDirectory: dir,
		"bytes":               len(content),
	})
	return WriteResult{SavedAs: fileName}, nil
}

func (g *PostgresGateway) Exists(ctx context.Context, name, directory string) (bool, error) {
	var ok bool
	if err := g.db.QueryRowContext(ctx, queryExists, cleanDir(directory), name).Scan(&ok); err != nil {
		return false, apperrors.NewTransportError(backendPostgres, err)
	}
	return ok, nil
}

func (g *PostgresGateway) DeleteFile(ctx context.Context, filePath, directory string) error {
	dir, name := resolvePath(filePath, directory)

	res, err := g.db.ExecContext(ctx, queryDeleteFile, dir, name)
	if err != nil {
		return apperrors.NewTransportError(backendPostgres, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewTransportError(backendPostgres, err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(joinPath(dir, name))
	}
	return nil
}

package pagesync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresProfileTableName  = "pagesync_profile"
	postgresDefaultProfile    = "default"
	postgresProfileQueryParam = "pagesync_profile"
	postgresOperationTimeout  = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// PostgresProfileStore keeps profile slots in one table keyed by profile name
// and slot key. The profile name comes from the pagesync_profile DSN query
// parameter, which is stripped before the DSN reaches the driver.
type PostgresProfileStore struct {
	dsn       string
	tableName string
	profile   string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresProfileStore(dsn string) (*PostgresProfileStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	driverDSN, profile, err := splitPostgresProfile(dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresProfileStore{
		dsn:       driverDSN,
		tableName: postgresProfileTableName,
		profile:   profile,
		openDB:    sql.Open,
	}, nil
}

func (b *PostgresProfileStore) Profile() string {
	return b.profile
}

func (b *PostgresProfileStore) Get(key string) (string, bool, error) {
	if err := b.ensureReady(); err != nil {
		return "", false, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT value FROM %s WHERE profile = $1 AND slot = $2", postgresQuoteIdentifier(b.tableName))
	var value string
	err := b.db.QueryRowContext(ctx, query, b.profile, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (b *PostgresProfileStore) Set(key, value string) error {
	if key == "" {
		return ErrInvalidInput
	}
	if err := b.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (profile, slot, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (profile, slot)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, postgresQuoteIdentifier(b.tableName))
	_, err := b.db.ExecContext(ctx, query, b.profile, key, value)
	return err
}

func (b *PostgresProfileStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *PostgresProfileStore) ensureReady() error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		db, err := b.openDB("postgres", b.dsn)
		if err != nil {
			b.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				profile TEXT NOT NULL,
				slot TEXT NOT NULL,
				value TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (profile, slot)
			)`, postgresQuoteIdentifier(b.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			b.initErr = err
			return
		}
		b.db = db
	})
	return b.initErr
}

func splitPostgresProfile(dsn string) (string, string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", "", err
	}
	q := parsed.Query()
	profile := strings.TrimSpace(q.Get(postgresProfileQueryParam))
	if profile == "" {
		profile = postgresDefaultProfile
	}
	q.Del(postgresProfileQueryParam)
	parsed.RawQuery = q.Encode()
	return parsed.String(), profile, nil
}

func postgresQuoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "\"\""
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

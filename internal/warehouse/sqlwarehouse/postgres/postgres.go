/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
	"github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse"
)

// postgresDialect implements sqlwarehouse.Dialect for PostgreSQL.
type postgresDialect struct{}

var _ sqlwarehouse.Dialect = (*postgresDialect)(nil)

func init() {
	warehouse.RegisterBackend("postgres", sqlwarehouse.Opener(postgresDialect{}))
	warehouse.RegisterBackend("cloudsqlpostgres", sqlwarehouse.Opener(postgresDialect{}))
}

func (postgresDialect) Name() string { return "postgres" }

// CreateCloudSQLPool connects through the Cloud SQL connector using pgx.
func (postgresDialect) CreateCloudSQLPool(cfg config.WarehouseConfig) (*sql.DB, error) {
	if cfg.User == "" || cfg.CloudSQLInstanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL connection parameter (user, instance)")
	}

	dsn := fmt.Sprintf("user=%s password=%s database=%s", cfg.User, cfg.Password, cfg.Database())
	pgxCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	var opts []cloudsqlconn.Option
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	d, err := cloudsqlconn.NewDialer(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}
	instance := cfg.CloudSQLInstanceConnectionName
	pgxCfg.DialFunc = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(ctx, instance)
	}
	dbURI := stdlib.RegisterConnConfig(pgxCfg)
	dbPool, err := sql.Open("pgx", dbURI)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	return dbPool, nil
}

// CreateStandardPool connects with lib/pq.
func (postgresDialect) CreateStandardPool(cfg config.WarehouseConfig) (*sql.DB, error) {
	connStr, err := standardDSN(cfg)
	if err != nil {
		return nil, err
	}
	dbPool, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return dbPool, nil
}

func standardDSN(cfg config.WarehouseConfig) (string, error) {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode, err := normalizeSSLMode(cfg.SSLMode)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.Database(), sslMode,
	), nil
}

func (postgresDialect) QuoteIdentifier(name string) string {
	return sqlwarehouse.QuoteDoubleQuoted(name)
}

func (postgresDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// ColumnsQuery reports array columns by their element type (udt_name minus the
// leading underscore) with a "[]" suffix.
func (postgresDialect) ColumnsQuery() string {
	return `
		SELECT
			c.column_name,
			CASE WHEN c.data_type = 'ARRAY' THEN substr(c.udt_name, 2) || '[]' ELSE c.data_type END,
			col_description(format('%I.%I', c.table_schema, c.table_name)::regclass::oid, c.ordinal_position)
		FROM information_schema.columns c
		WHERE c.table_schema = $1
		AND c.table_name = $2
		ORDER BY c.ordinal_position`
}

func (postgresDialect) PreviewQuery(qualifiedTable string, limit int) string {
	return sqlwarehouse.LimitPreview(qualifiedTable, limit)
}

func (postgresDialect) TxOptions() *sql.TxOptions { return &sql.TxOptions{ReadOnly: true} }

func (postgresDialect) Lexicon() warehouse.Lexicon { return warehouse.StandardSQL }

func normalizeSSLMode(mode string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case "":
		return "disable", nil
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		return m, nil
	default:
		return "", fmt.Errorf("unsupported sslmode %q", mode)
	}
}

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
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
	"github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse"
)

// sqlServerDialect implements sqlwarehouse.Dialect for SQL Server.
type sqlServerDialect struct{}

var _ sqlwarehouse.Dialect = (*sqlServerDialect)(nil)

func init() {
	warehouse.RegisterBackend("sqlserver", sqlwarehouse.Opener(sqlServerDialect{}))
	warehouse.RegisterBackend("cloudsqlsqlserver", sqlwarehouse.Opener(sqlServerDialect{}))
}

type csqlDialer struct {
	dialer     *cloudsqlconn.Dialer
	connName   string
	usePrivate bool
}

// DialContext adheres to the mssql.Dialer interface.
func (c *csqlDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var opts []cloudsqlconn.DialOption
	if c.usePrivate {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}
	return c.dialer.Dial(ctx, c.connName, opts...)
}

func (sqlServerDialect) Name() string { return "sqlserver" }

func (sqlServerDialect) CreateCloudSQLPool(cfg config.WarehouseConfig) (*sql.DB, error) {
	if cfg.CloudSQLInstanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL instance connection name")
	}
	// Refresh lazily; background refreshes get throttled on serverless runtimes.
	dialer, err := cloudsqlconn.NewDialer(context.Background(), cloudsqlconn.WithLazyRefresh())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}
	connector, err := mssql.NewConnector(dsn(cfg, "localhost", 1433))
	if err != nil {
		dialer.Close()
		return nil, fmt.Errorf("mssql.NewConnector: %w", err)
	}
	connector.Dialer = &csqlDialer{
		dialer:     dialer,
		connName:   cfg.CloudSQLInstanceConnectionName,
		usePrivate: cfg.UsePrivateIP,
	}
	return sql.OpenDB(connector), nil
}

func (sqlServerDialect) CreateStandardPool(cfg config.WarehouseConfig) (*sql.DB, error) {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	dbPool, err := sql.Open("sqlserver", dsn(cfg, cfg.Host, port))
	if err != nil {
		return nil, fmt.Errorf("sql.Open (standard sqlserver): %w", err)
	}
	return dbPool, nil
}

func dsn(cfg config.WarehouseConfig, host string, port int) string {
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", host, port),
		RawQuery: url.Values{"database": {cfg.Database()}}.Encode(),
	}
	return u.String()
}

func (sqlServerDialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (sqlServerDialect) Placeholder(n int) string {
	return fmt.Sprintf("@p%d", n)
}

// ColumnsQuery reads column descriptions from the MS_Description extended property.
func (sqlServerDialect) ColumnsQuery() string {
	return `
		SELECT c.COLUMN_NAME, c.DATA_TYPE, CAST(ep.value AS NVARCHAR(MAX))
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN sys.extended_properties ep
			ON ep.major_id = OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME))
			AND ep.minor_id = COLUMNPROPERTY(ep.major_id, c.COLUMN_NAME, 'ColumnId')
			AND ep.class = 1
			AND ep.name = 'MS_Description'
		WHERE c.TABLE_SCHEMA = @p1
		AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION`
}

func (sqlServerDialect) PreviewQuery(qualifiedTable string, limit int) string {
	return fmt.Sprintf("SELECT TOP (%d) * FROM %s", limit, qualifiedTable)
}

// TxOptions uses default options: the driver rejects READ ONLY, and T-SQL
// batches need no separator between statements. The rollback undoes writes.
func (sqlServerDialect) TxOptions() *sql.TxOptions { return &sql.TxOptions{} }

func (sqlServerDialect) Lexicon() warehouse.Lexicon { return warehouse.StandardSQL }

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
package sqlwarehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

// DB serves warehouse.Warehouse from any database/sql pool. The dataset is a schema;
// tables are referenced as schema.table.
type DB struct {
	Pool    *sql.DB
	Dialect Dialect
	dataset warehouse.DatasetHandle
	logger  *zap.Logger
}

var _ warehouse.Warehouse = (*DB)(nil)

// New wraps an open pool.
func New(pool *sql.DB, dialect Dialect, schema string, logger *zap.Logger) *DB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DB{
		Pool:    pool,
		Dialect: dialect,
		dataset: warehouse.DatasetHandle{Dataset: schema},
		logger:  logger,
	}
}

// Opener returns a warehouse.Opener for the dialect. Backends prefixed with
// "cloudsql" connect through the Cloud SQL connector.
func Opener(dialect Dialect) warehouse.Opener {
	return func(ctx context.Context, cfg config.WarehouseConfig, logger *zap.Logger) (warehouse.Warehouse, error) {
		var (
			pool *sql.DB
			err  error
		)
		if strings.HasPrefix(cfg.Backend, "cloudsql") {
			pool, err = dialect.CreateCloudSQLPool(cfg)
		} else {
			pool, err = dialect.CreateStandardPool(cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool for dialect %s: %w", dialect.Name(), err)
		}

		if err := pool.PingContext(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to connect to database (ping failed) for dialect %s: %w", dialect.Name(), err)
		}
		return New(pool, dialect, cfg.DatasetID, logger), nil
	}
}

func (db *DB) Dataset() warehouse.DatasetHandle {
	return db.dataset
}

func (db *DB) ListTables(ctx context.Context, ds warehouse.DatasetHandle) ([]string, error) {
	rows, err := db.Pool.QueryContext(ctx, listTablesQuery(db.Dialect), ds.Dataset)
	if err != nil {
		return nil, fmt.Errorf("error querying tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("error scanning table name: %w", err)
		}
		tables = append(tables, tableName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table rows: %w", err)
	}
	return tables, nil
}

func (db *DB) TableMetadata(ctx context.Context, ds warehouse.DatasetHandle, table string) (*warehouse.TableDescriptor, error) {
	var rawType string
	err := db.Pool.QueryRowContext(ctx, tableTypeQuery(db.Dialect), ds.Dataset, table).Scan(&rawType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %s does not exist", ds.TableRef(table))
	}
	if err != nil {
		return nil, fmt.Errorf("error querying type of table %s: %w", table, err)
	}

	rows, err := db.Pool.QueryContext(ctx, db.Dialect.ColumnsQuery(), ds.Dataset, table)
	if err != nil {
		return nil, fmt.Errorf("error querying columns for table %s: %w", table, err)
	}
	defer rows.Close()

	var columns []warehouse.ColumnDescriptor
	for rows.Next() {
		var name, dataType string
		var comment sql.NullString
		if err := rows.Scan(&name, &dataType, &comment); err != nil {
			return nil, fmt.Errorf("error scanning column of table %s: %w", table, err)
		}
		typ, repeated := columnType(dataType)
		columns = append(columns, warehouse.ColumnDescriptor{
			Name:        name,
			Type:        typ,
			Repeated:    repeated,
			Description: strings.TrimSpace(comment.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column rows: %w", err)
	}

	return &warehouse.TableDescriptor{
		ID:      table,
		Type:    normalizeTableType(rawType),
		Columns: columns,
	}, nil
}

func (db *DB) PreviewRows(ctx context.Context, ds warehouse.DatasetHandle, table string, max int) ([]warehouse.SampleRow, error) {
	if max <= 0 {
		return nil, nil
	}
	qualified := db.Dialect.QuoteIdentifier(ds.Dataset) + "." + db.Dialect.QuoteIdentifier(table)
	rows, err := db.Pool.QueryContext(ctx, db.Dialect.PreviewQuery(qualified, max))
	if err != nil {
		return nil, fmt.Errorf("error previewing table %s: %w", table, err)
	}
	defer rows.Close()

	_, values, err := scanAll(rows, db.Dialect)
	if err != nil {
		return nil, fmt.Errorf("error reading preview of table %s: %w", table, err)
	}
	samples := make([]warehouse.SampleRow, 0, len(values))
	for _, v := range values {
		samples = append(samples, warehouse.SampleRow(v))
	}
	return samples, nil
}

func (db *DB) Query(ctx context.Context, sqlText string) (*warehouse.ResultSet, error) {
	if db.Pool == nil {
		return nil, fmt.Errorf("database connection pool is not initialized")
	}

	var q interface {
		QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	} = db.Pool
	if opts := db.Dialect.TxOptions(); opts != nil {
		tx, err := db.Pool.BeginTx(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to begin query transaction: %w", err)
		}
		defer tx.Rollback()
		q = tx
	}

	rows, err := q.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, db.classify(err)
	}
	defer rows.Close()

	columns, values, err := scanAll(rows, db.Dialect)
	if err != nil {
		return nil, err
	}
	return &warehouse.ResultSet{Columns: columns, Rows: values}, nil
}

func (db *DB) Syntax() warehouse.Syntax {
	return warehouse.Syntax{Lexicon: db.Dialect.Lexicon(), QuoteIdentifier: db.Dialect.QuoteIdentifier}
}

func (db *DB) Close() error {
	if db.Pool != nil {
		return db.Pool.Close()
	}
	db.logger.Warn("attempted to close a nil database connection pool")
	return nil
}

func (db *DB) classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return warehouse.NewAPIError(db.Dialect.Name(), err)
}

// scanAll materializes rows. Errors the driver reports while streaming come from the
// server and are returned as *warehouse.APIError.
func scanAll(rows *sql.Rows, d Dialect) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}
	var decimals []bool
	if types, err := rows.ColumnTypes(); err == nil {
		decimals = make([]bool, len(types))
		for i, ct := range types {
			switch strings.ToUpper(ct.DatabaseTypeName()) {
			case "DECIMAL", "NUMERIC":
				decimals[i] = true
			}
		}
	}

	result := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		row := normalizeValues(values, decimals)
		if n, ok := d.(ValueNormalizer); ok {
			for i := range row {
				row[i] = n.NormalizeValue(row[i])
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		return nil, nil, warehouse.NewAPIError(d.Name(), err)
	}
	return columns, result, nil
}

func normalizeValues(values []any, decimals []bool) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			if i < len(decimals) && decimals[i] {
				if r, ok := new(big.Rat).SetString(string(typed)); ok {
					normalized[i] = r
					continue
				}
			}
			normalized[i] = string(typed)
		case string:
			if i < len(decimals) && decimals[i] {
				if r, ok := new(big.Rat).SetString(typed); ok {
					normalized[i] = r
					continue
				}
			}
			normalized[i] = typed
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func columnType(dataType string) (string, bool) {
	dataType = strings.TrimSpace(dataType)
	if strings.HasSuffix(dataType, "[]") {
		return strings.ToUpper(strings.TrimSuffix(dataType, "[]")), true
	}
	return strings.ToUpper(dataType), false
}

func normalizeTableType(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BASE TABLE":
		return warehouse.BaseTable
	case "VIEW", "SYSTEM VIEW":
		return warehouse.View
	default:
		return raw
	}
}

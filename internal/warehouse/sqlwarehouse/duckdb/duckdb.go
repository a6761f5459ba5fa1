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
package duckdb

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
	"github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse"
)

// DefaultSchema is the schema DuckDB creates tables in when none is given.
const DefaultSchema = "main"

type duckDBDialect struct{}

var (
	_ sqlwarehouse.Dialect         = (*duckDBDialect)(nil)
	_ sqlwarehouse.ValueNormalizer = (*duckDBDialect)(nil)
)

func init() {
	warehouse.RegisterBackend("duckdb", sqlwarehouse.Opener(duckDBDialect{}))
}

// OpenPool opens the DuckDB database file at path; an empty path is an in-memory database.
func OpenPool(path string) (*sql.DB, error) {
	pool, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return pool, nil
}

// ReadOnlyDSN returns the DSN opening the database file at path with
// access_mode=READ_ONLY. In-memory databases cannot be opened read-only and are
// returned unchanged.
func ReadOnlyDSN(path string) string {
	if path == "" || path == ":memory:" {
		return path
	}
	return path + "?access_mode=READ_ONLY"
}

func (duckDBDialect) Name() string { return "duckdb" }

// CreateStandardPool opens the agent's pool read-only; mirror load writes
// through its own OpenPool.
func (duckDBDialect) CreateStandardPool(cfg config.WarehouseConfig) (*sql.DB, error) {
	return OpenPool(ReadOnlyDSN(cfg.DuckDBPath))
}

func (duckDBDialect) CreateCloudSQLPool(config.WarehouseConfig) (*sql.DB, error) {
	return nil, errors.New("duckdb does not support Cloud SQL connections")
}

func (duckDBDialect) QuoteIdentifier(name string) string {
	return sqlwarehouse.QuoteDoubleQuoted(name)
}

func (duckDBDialect) Placeholder(int) string { return "?" }

func (duckDBDialect) ColumnsQuery() string {
	return `
		SELECT column_name, data_type, COALESCE(comment, '')
		FROM duckdb_columns()
		WHERE schema_name = ?
		AND table_name = ?
		ORDER BY column_index`
}

func (duckDBDialect) PreviewQuery(qualifiedTable string, limit int) string {
	return sqlwarehouse.LimitPreview(qualifiedTable, limit)
}

// TxOptions uses default options, the only ones the driver accepts. A single
// QueryContext runs every statement it is given, all inside the rolled back
// transaction.
func (duckDBDialect) TxOptions() *sql.TxOptions { return &sql.TxOptions{} }

func (duckDBDialect) Lexicon() warehouse.Lexicon { return warehouse.StandardSQL }

// NormalizeValue converts DECIMAL values into *big.Rat.
func (duckDBDialect) NormalizeValue(v any) any {
	switch d := v.(type) {
	case duckdb.Decimal:
		return decimalToRat(d)
	case *duckdb.Decimal:
		if d == nil {
			return nil
		}
		return decimalToRat(*d)
	case []any:
		out := make([]any, len(d))
		for i, item := range d {
			out[i] = duckDBDialect{}.NormalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(d))
		for k, item := range d {
			out[k] = duckDBDialect{}.NormalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func decimalToRat(d duckdb.Decimal) *big.Rat {
	if d.Value == nil {
		return new(big.Rat)
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil)
	return new(big.Rat).SetFrac(d.Value, denom)
}

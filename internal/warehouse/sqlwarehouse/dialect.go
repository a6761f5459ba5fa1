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
	"database/sql"
	"fmt"
	"strings"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

// Dialect isolates what differs between SQL engines exposing information_schema.
type Dialect interface {
	Name() string
	CreateStandardPool(cfg config.WarehouseConfig) (*sql.DB, error)
	CreateCloudSQLPool(cfg config.WarehouseConfig) (*sql.DB, error)
	QuoteIdentifier(name string) string

	// Placeholder returns the bind parameter marker for the n-th (1-based) argument.
	Placeholder(n int) string

	// ColumnsQuery selects (column_name, data_type, comment) for a schema and table
	// bound to placeholders 1 and 2, in ordinal order. Array types end in "[]".
	ColumnsQuery() string

	PreviewQuery(qualifiedTable string, limit int) string

	// TxOptions returns the options of the transaction each query runs in. The
	// transaction is always rolled back, so drivers without READ ONLY support still
	// discard whatever a statement changed. Nil runs queries outside a transaction.
	TxOptions() *sql.TxOptions

	// Lexicon returns the lexical rules queries are checked against.
	Lexicon() warehouse.Lexicon
}

// ValueNormalizer is implemented by dialects whose driver scans engine-specific
// types that should be converted to plain Go values.
type ValueNormalizer interface {
	NormalizeValue(v any) any
}

// QuoteDoubleQuoted quotes an identifier ANSI style.
func QuoteDoubleQuoted(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// LimitPreview is the PreviewQuery shared by engines supporting LIMIT.
func LimitPreview(qualifiedTable string, limit int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", qualifiedTable, limit)
}

func listTablesQuery(d Dialect) string {
	return fmt.Sprintf(`
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = %s
		ORDER BY table_name`, d.Placeholder(1))
}

func tableTypeQuery(d Dialect) string {
	return fmt.Sprintf(`
		SELECT table_type
		FROM information_schema.tables
		WHERE table_schema = %s
		AND table_name = %s`, d.Placeholder(1), d.Placeholder(2))
}

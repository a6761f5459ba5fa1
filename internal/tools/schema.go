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
package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

// SampleRowLimit caps the example rows shown per table.
const SampleRowLimit = 5

// ErrWarehouseUnavailable is returned when no warehouse client could be created.
var ErrWarehouseUnavailable = errors.New("warehouse client is not initialized")

type SchemaOptions struct {
	// SkipFailedTables logs and skips tables whose metadata or sample cannot be
	// read instead of failing the whole document.
	SkipFailedTables bool
	// Tables restricts the document to these tables. Empty means all tables.
	Tables []string
}

// SchemaCompiler renders a dataset's base tables as CREATE TABLE statements
// followed by INSERT statements holding sample rows.
type SchemaCompiler struct {
	wh     warehouse.Warehouse
	logger *zap.Logger
	opts   SchemaOptions
}

func NewSchemaCompiler(wh warehouse.Warehouse, logger *zap.Logger, opts SchemaOptions) *SchemaCompiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaCompiler{wh: wh, logger: logger, opts: opts}
}

// Compile builds the schema document for ds. Errors are returned as-is unless
// SkipFailedTables is set; an empty dataset yields an empty document.
func (c *SchemaCompiler) Compile(ctx context.Context, ds warehouse.DatasetHandle) (string, error) {
	if c.wh == nil {
		return "", ErrWarehouseUnavailable
	}

	tables, err := c.wh.ListTables(ctx, ds)
	if err != nil {
		return "", fmt.Errorf("failed to list tables in %s: %w", ds, err)
	}
	tables = c.filter(tables)

	var doc strings.Builder
	for _, table := range tables {
		block, err := c.compileTable(ctx, ds, table)
		if err != nil {
			if c.opts.SkipFailedTables {
				c.logger.Warn("skipping table", zap.String("table", ds.TableRef(table)), zap.Error(err))
				continue
			}
			return "", err
		}
		doc.WriteString(block)
	}
	c.logger.Debug("schema compiled", zap.String("dataset", ds.String()), zap.Int("tables", len(tables)), zap.Int("bytes", doc.Len()))
	return doc.String(), nil
}

func (c *SchemaCompiler) filter(tables []string) []string {
	if len(c.opts.Tables) == 0 {
		return tables
	}
	wanted := make(map[string]bool, len(c.opts.Tables))
	for _, t := range c.opts.Tables {
		wanted[t] = true
	}
	var kept []string
	for _, t := range tables {
		if wanted[t] {
			kept = append(kept, t)
			delete(wanted, t)
		}
	}
	for t := range wanted {
		c.logger.Warn("requested table not found", zap.String("table", t))
	}
	return kept
}

// compileTable returns the block for one table, or "" when it is not a base table.
func (c *SchemaCompiler) compileTable(ctx context.Context, ds warehouse.DatasetHandle, table string) (string, error) {
	md, err := c.wh.TableMetadata(ctx, ds, table)
	if err != nil {
		return "", fmt.Errorf("failed to get metadata for table %s: %w", ds.TableRef(table), err)
	}
	if md == nil {
		return "", fmt.Errorf("no metadata returned for table %s", ds.TableRef(table))
	}
	if !md.IsBaseTable() {
		c.logger.Debug("skipping non-base table", zap.String("table", table), zap.String("type", md.Type))
		return "", nil
	}

	syntax := c.wh.Syntax()
	ref := syntax.QuoteTableRef(ds, table)
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE TABLE %s (\n", ref)
	for i, col := range md.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString(formatColumn(syntax, col))
	}
	if len(md.Columns) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(");\n\n")

	rows, err := c.wh.PreviewRows(ctx, ds, table, SampleRowLimit)
	if err != nil {
		return "", fmt.Errorf("failed to read sample rows of table %s: %w", ds.TableRef(table), err)
	}
	if len(rows) > SampleRowLimit {
		rows = rows[:SampleRowLimit]
	}
	if len(rows) > 0 {
		fmt.Fprintf(&b, "-- Example values for table %s:\n", ref)
		for _, row := range rows {
			fmt.Fprintf(&b, "INSERT INTO %s VALUES\n(", ref)
			for i, v := range row {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString(formatLiteral(v))
			}
			b.WriteString(");\n\n")
		}
	}
	return b.String(), nil
}

// formatColumn quotes the column name the way the warehouse's queries must.
func formatColumn(syntax warehouse.Syntax, col warehouse.ColumnDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %s %s", syntax.Quote(col.Name), col.Type)
	if col.Repeated {
		b.WriteString(" ARRAY")
	}
	if col.Description != "" {
		fmt.Fprintf(&b, " COMMENT %s", quoteString(col.Description))
	}
	return b.String()
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// formatLiteral renders a sample value: strings quoted, nil as NULL, everything
// else in its plain text form.
func formatLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteString(t)
	case []byte:
		return quoteString(string(t))
	case time.Time:
		return t.Format(time.RFC3339)
	case *big.Rat:
		if t == nil {
			return "NULL"
		}
		return ratString(t)
	case float64:
		return formatFloat(t, 64)
	case float32:
		return formatFloat(float64(t), 32)
	case []any:
		items := make([]string, len(t))
		for i, item := range t {
			items[i] = formatLiteral(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, len(keys))
		for i, k := range keys {
			fields[i] = quoteString(k) + ": " + formatLiteral(t[k])
		}
		return "{" + strings.Join(fields, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}

func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, bitSize)
}

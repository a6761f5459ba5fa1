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
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/config"
)

// Table types reported in TableDescriptor.Type.
const (
	BaseTable = "BASE TABLE"
	View      = "VIEW"
)

// Warehouse defines the read operations the agent tools need from an analytical
// data warehouse. Implementations must be safe for concurrent use.
type Warehouse interface {
	// Dataset returns the dataset configured at startup.
	Dataset() DatasetHandle

	// ListTables returns the table identifiers of a dataset in the warehouse's listing order.
	ListTables(ctx context.Context, ds DatasetHandle) ([]string, error)

	// TableMetadata returns the type and ordered columns of a table.
	TableMetadata(ctx context.Context, ds DatasetHandle, table string) (*TableDescriptor, error)

	// PreviewRows returns up to max rows of a table in no particular order.
	PreviewRows(ctx context.Context, ds DatasetHandle, table string, max int) ([]SampleRow, error)

	// Query runs sqlText and materializes the full result set. Errors reported by
	// the warehouse itself are returned as *APIError.
	Query(ctx context.Context, sqlText string) (*ResultSet, error)

	// Syntax describes how SQL sent to this warehouse is written.
	Syntax() Syntax

	Close() error
}

// Lexicon names the lexical rules of a SQL dialect: how strings, quoted
// identifiers and comments are delimited.
type Lexicon int

const (
	// StandardSQL doubles quotes inside strings and has no backslash escapes
	// outside E'' strings. "#" is not a comment and $$ delimits strings.
	StandardSQL Lexicon = iota
	// GoogleSQL strings take backslash escapes and triple quotes, identifiers are
	// backtick quoted and "#" starts a comment.
	GoogleSQL
	// MySQL strings take backslash escapes, "#" starts a comment and "--" only
	// does when followed by whitespace.
	MySQL
)

func (l Lexicon) String() string {
	switch l {
	case StandardSQL:
		return "standard"
	case GoogleSQL:
		return "googlesql"
	case MySQL:
		return "mysql"
	default:
		return fmt.Sprintf("Lexicon(%d)", int(l))
	}
}

// Syntax is the SQL flavor of a warehouse.
type Syntax struct {
	Lexicon Lexicon
	// QuoteIdentifier quotes one identifier. Nil quotes with backticks.
	QuoteIdentifier func(name string) string
}

// Quote quotes one identifier.
func (s Syntax) Quote(name string) string {
	if s.QuoteIdentifier == nil {
		return quoteBackticks(name)
	}
	return s.QuoteIdentifier(name)
}

// QuoteTableRef returns the reference to a table of ds as a query must write it.
// GoogleSQL quotes the whole project.dataset.table path at once; other dialects
// quote each part.
func (s Syntax) QuoteTableRef(ds DatasetHandle, table string) string {
	if s.Lexicon == GoogleSQL {
		return s.Quote(ds.TableRef(table))
	}
	var parts []string
	for _, p := range []string{ds.Project, ds.Dataset, table} {
		if p != "" {
			parts = append(parts, s.Quote(p))
		}
	}
	return strings.Join(parts, ".")
}

func quoteBackticks(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

// DatasetHandle identifies the project and dataset to introspect.
type DatasetHandle struct {
	Project string
	Dataset string
}

// TableRef returns the fully qualified project.dataset.table reference.
func (d DatasetHandle) TableRef(table string) string {
	if d.Project == "" {
		return d.Dataset + "." + table
	}
	return d.Project + "." + d.Dataset + "." + table
}

func (d DatasetHandle) String() string {
	if d.Project == "" {
		return d.Dataset
	}
	return d.Project + "." + d.Dataset
}

// ColumnDescriptor describes one column of a table.
type ColumnDescriptor struct {
	Name        string
	Type        string
	Repeated    bool
	Description string
}

// TableDescriptor describes a table and its columns in warehouse order.
type TableDescriptor struct {
	ID      string
	Type    string
	Columns []ColumnDescriptor
}

func (t *TableDescriptor) IsBaseTable() bool {
	return t != nil && t.Type == BaseTable
}

// SampleRow holds one previewed row, values aligned with the table's columns.
type SampleRow []any

// ResultSet is a fully materialized query result.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Opener constructs a Warehouse for a backend.
type Opener func(ctx context.Context, cfg config.WarehouseConfig, logger *zap.Logger) (Warehouse, error)

var (
	backends = make(map[string]Opener)
	mu       sync.RWMutex
)

func RegisterBackend(name string, open Opener) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[name]; exists {
		zap.L().Warn("warehouse backend is being overwritten", zap.String("backend", name))
	}
	backends[name] = open
}

func GetBackend(name string) (Opener, error) {
	mu.RLock()
	defer mu.RUnlock()
	open, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unsupported warehouse backend: %s", name)
	}
	return open, nil
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the warehouse client for cfg.Backend.
func Open(ctx context.Context, cfg config.WarehouseConfig, logger *zap.Logger) (Warehouse, error) {
	open, err := GetBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	wh, err := open(ctx, cfg, logger.With(zap.String("backend", cfg.Backend)))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s warehouse: %w", cfg.Backend, err)
	}
	return wh, nil
}

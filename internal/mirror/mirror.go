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
package mirror

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/storage/s3"
	"github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse"
)

const parquetSuffix = ".parquet"

// Source lists and reads parquet exports.
type Source interface {
	List(ctx context.Context, suffix string) ([]s3.ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// TablePlan is one table to create and the objects it is read from.
type TablePlan struct {
	Table   string
	Objects []s3.ObjectInfo
}

func (p TablePlan) Size() int64 {
	var n int64
	for _, o := range p.Objects {
		n += o.Size
	}
	return n
}

// TableReport describes a loaded table.
type TableReport struct {
	Table   string
	Files   int
	Rows    int64
	Columns []string
}

type Loader struct {
	src     Source
	db      *sql.DB
	fs      afero.Fs
	workDir string
	schema  string
	logger  *zap.Logger
}

// NewLoader creates tables in schema of the DuckDB database db. Objects are
// downloaded below workDir on fs, which must be the filesystem DuckDB reads.
func NewLoader(src Source, db *sql.DB, fs afero.Fs, workDir, schema string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{src: src, db: db, fs: fs, workDir: workDir, schema: schema, logger: logger}
}

// Plan groups the parquet objects by table. Objects in a directory form the table
// named after that directory; objects at the top level each form their own table.
func (l *Loader) Plan(ctx context.Context) ([]TablePlan, error) {
	objects, err := l.src.List(ctx, parquetSuffix)
	if err != nil {
		return nil, err
	}

	byTable := make(map[string][]s3.ObjectInfo)
	for _, obj := range objects {
		table := TableName(obj.Key)
		if table == "" {
			l.logger.Warn("skipping object without a usable table name", zap.String("key", obj.Key))
			continue
		}
		byTable[table] = append(byTable[table], obj)
	}

	plans := make([]TablePlan, 0, len(byTable))
	for table, objs := range byTable {
		sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
		plans = append(plans, TablePlan{Table: table, Objects: objs})
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Table < plans[j].Table })
	return plans, nil
}

// Load downloads, validates and creates every planned table. It stops at the
// first failing table; tables created before it are kept.
func (l *Loader) Load(ctx context.Context, plans []TablePlan) ([]TableReport, error) {
	if err := l.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", sqlwarehouse.QuoteDoubleQuoted(l.schema))); err != nil {
		return nil, fmt.Errorf("create schema %s: %w", l.schema, err)
	}

	reports := make([]TableReport, 0, len(plans))
	for _, plan := range plans {
		report, err := l.loadTable(ctx, plan)
		if err != nil {
			return reports, fmt.Errorf("load table %s: %w", plan.Table, err)
		}
		l.logger.Info("table loaded",
			zap.String("table", report.Table),
			zap.Int("files", report.Files),
			zap.Int64("rows", report.Rows))
		reports = append(reports, report)
	}
	return reports, nil
}

func (l *Loader) loadTable(ctx context.Context, plan TablePlan) (TableReport, error) {
	if len(plan.Objects) == 0 {
		return TableReport{}, fmt.Errorf("no parquet objects")
	}
	report := TableReport{Table: plan.Table, Files: len(plan.Objects)}

	localPaths := make([]string, 0, len(plan.Objects))
	for _, obj := range plan.Objects {
		local, err := l.download(ctx, obj.Key)
		if err != nil {
			return TableReport{}, err
		}
		rows, columns, err := inspect(l.fs, local)
		if err != nil {
			return TableReport{}, fmt.Errorf("invalid parquet object %s: %w", obj.Key, err)
		}
		if report.Columns == nil {
			report.Columns = columns
		} else if !sameColumns(report.Columns, columns) {
			return TableReport{}, fmt.Errorf("object %s has columns %v, expected %v", obj.Key, columns, report.Columns)
		}
		report.Rows += rows
		localPaths = append(localPaths, local)
	}

	if err := l.exec(ctx, CreateTableSQL(l.schema, plan.Table, localPaths)); err != nil {
		return TableReport{}, err
	}
	return report, nil
}

func (l *Loader) download(ctx context.Context, key string) (string, error) {
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("object key %q escapes the work directory", key)
	}
	local := filepath.Join(l.workDir, rel)
	if err := l.fs.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", key, err)
	}

	rc, err := l.src.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	f, err := l.fs.Create(local)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", local, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", local, err)
	}
	l.logger.Debug("object downloaded", zap.String("key", key), zap.String("path", local))
	return local, nil
}

func (l *Loader) exec(ctx context.Context, stmt string) error {
	l.logger.Debug("executing statement", zap.String("sql", stmt))
	_, err := l.db.ExecContext(ctx, stmt)
	return err
}

// inspect opens a parquet file and returns its row count and top-level column names.
func inspect(fs afero.Fs, name string) (int64, []string, error) {
	f, err := fs.Open(name)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, nil, err
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return 0, nil, err
	}
	fields := pf.Schema().Fields()
	if len(fields) == 0 {
		return 0, nil, fmt.Errorf("parquet file has no columns")
	}
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = field.Name()
	}
	return pf.NumRows(), columns, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		if !seen[c] {
			return false
		}
	}
	return true
}

// TableName derives a table name from an object key: the parent directory, or the
// file name without extension for top-level objects. Characters outside
// [a-z0-9_] become underscores.
func TableName(key string) string {
	key = strings.Trim(key, "/")
	dir := path.Dir(key)
	var raw string
	if dir == "." || dir == "" {
		raw = strings.TrimSuffix(path.Base(key), path.Ext(key))
	} else {
		raw = path.Base(dir)
	}
	// Hive-style partitions (anio=2024) name the table after the directory above.
	for strings.Contains(raw, "=") && dir != "." {
		dir = path.Dir(dir)
		if dir == "." {
			return ""
		}
		raw = path.Base(dir)
	}

	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "t_" + name
	}
	return name
}

// CreateTableSQL builds the statement that materializes files as schema.table.
func CreateTableSQL(schema, table string, files []string) string {
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = "'" + strings.ReplaceAll(filepath.ToSlash(f), "'", "''") + "'"
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s.%s AS SELECT * FROM read_parquet([%s])",
		sqlwarehouse.QuoteDoubleQuoted(schema),
		sqlwarehouse.QuoteDoubleQuoted(table),
		strings.Join(quoted, ", "))
}

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
package bigquery

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

const backendName = "bigquery"

// Warehouse implements warehouse.Warehouse on top of the BigQuery client.
type Warehouse struct {
	client  *bigquery.Client
	dataset warehouse.DatasetHandle
	logger  *zap.Logger
}

var _ warehouse.Warehouse = (*Warehouse)(nil)

func init() {
	warehouse.RegisterBackend(backendName, Open)
}

// Open creates a BigQuery client billed to cfg.ProjectID using ambient credentials,
// or the service account file in cfg.CredentialsFile.
func Open(ctx context.Context, cfg config.WarehouseConfig, logger *zap.Logger) (warehouse.Warehouse, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	return &Warehouse{
		client:  client,
		dataset: warehouse.DatasetHandle{Project: cfg.ProjectID, Dataset: cfg.DatasetID},
		logger:  logger,
	}, nil
}

func (w *Warehouse) Dataset() warehouse.DatasetHandle {
	return w.dataset
}

func (w *Warehouse) ListTables(ctx context.Context, ds warehouse.DatasetHandle) ([]string, error) {
	it := w.client.DatasetInProject(ds.Project, ds.Dataset).Tables(ctx)

	var tables []string
	for {
		t, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error listing tables in %s: %w", ds, classifyError(err))
		}
		tables = append(tables, t.TableID)
	}
	return tables, nil
}

func (w *Warehouse) TableMetadata(ctx context.Context, ds warehouse.DatasetHandle, table string) (*warehouse.TableDescriptor, error) {
	md, err := w.client.DatasetInProject(ds.Project, ds.Dataset).Table(table).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting metadata for table %s: %w", ds.TableRef(table), classifyError(err))
	}
	return &warehouse.TableDescriptor{
		ID:      table,
		Type:    tableType(md.Type),
		Columns: columnsFromSchema(md.Schema),
	}, nil
}

// PreviewRows reads table data directly (tabledata.list), which costs no query bytes.
func (w *Warehouse) PreviewRows(ctx context.Context, ds warehouse.DatasetHandle, table string, max int) ([]warehouse.SampleRow, error) {
	if max <= 0 {
		return nil, nil
	}
	it := w.client.DatasetInProject(ds.Project, ds.Dataset).Table(table).Read(ctx)
	it.PageInfo().MaxSize = max

	rows := make([]warehouse.SampleRow, 0, max)
	for len(rows) < max {
		var values []bigquery.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading rows of table %s: %w", ds.TableRef(table), classifyError(err))
		}
		rows = append(rows, warehouse.SampleRow(normalizeRow(values, it.Schema)))
	}
	return rows, nil
}

func (w *Warehouse) Query(ctx context.Context, sqlText string) (*warehouse.ResultSet, error) {
	it, err := w.client.Query(sqlText).Read(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	result := &warehouse.ResultSet{Rows: make([][]any, 0)}
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyError(err)
		}
		if result.Columns == nil {
			result.Columns = columnNames(it.Schema)
		}
		result.Rows = append(result.Rows, normalizeRow(values, it.Schema))
	}
	if result.Columns == nil {
		result.Columns = columnNames(it.Schema)
	}
	w.logger.Debug("query materialized", zap.Int("rows", len(result.Rows)), zap.Uint64("total_rows", it.TotalRows))
	return result, nil
}

// Syntax is GoogleSQL with backtick-quoted table paths.
func (w *Warehouse) Syntax() warehouse.Syntax {
	return warehouse.Syntax{Lexicon: warehouse.GoogleSQL}
}

func (w *Warehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

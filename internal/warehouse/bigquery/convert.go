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
	"errors"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

func tableType(t bigquery.TableType) string {
	switch t {
	case bigquery.RegularTable:
		return warehouse.BaseTable
	case bigquery.ViewTable, bigquery.MaterializedView:
		return warehouse.View
	default:
		return string(t)
	}
}

func columnsFromSchema(schema bigquery.Schema) []warehouse.ColumnDescriptor {
	columns := make([]warehouse.ColumnDescriptor, 0, len(schema))
	for _, field := range schema {
		columns = append(columns, warehouse.ColumnDescriptor{
			Name:        field.Name,
			Type:        string(field.Type),
			Repeated:    field.Repeated,
			Description: field.Description,
		})
	}
	return columns
}

func columnNames(schema bigquery.Schema) []string {
	names := make([]string, len(schema))
	for i, field := range schema {
		names[i] = field.Name
	}
	return names
}

// normalizeRow converts client values into plain Go values: repeated fields become
// []any and records become map[string]any keyed by field name.
func normalizeRow(values []bigquery.Value, schema bigquery.Schema) []any {
	row := make([]any, len(values))
	for i, v := range values {
		var field *bigquery.FieldSchema
		if i < len(schema) {
			field = schema[i]
		}
		row[i] = normalizeValue(v, field, field != nil && field.Repeated)
	}
	return row
}

func normalizeValue(v bigquery.Value, field *bigquery.FieldSchema, repeated bool) any {
	if v == nil {
		return nil
	}
	if repeated {
		items, ok := v.([]bigquery.Value)
		if !ok {
			return v
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = normalizeValue(item, field, false)
		}
		return out
	}
	if field != nil && field.Type == bigquery.RecordFieldType {
		items, ok := v.([]bigquery.Value)
		if !ok {
			return v
		}
		record := make(map[string]any, len(items))
		for i, item := range items {
			if i >= len(field.Schema) {
				break
			}
			sub := field.Schema[i]
			record[sub.Name] = normalizeValue(item, sub, sub.Repeated)
		}
		return record
	}
	if items, ok := v.([]bigquery.Value); ok {
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = normalizeValue(item, nil, false)
		}
		return out
	}
	return v
}

// classifyError turns faults reported by BigQuery into *warehouse.APIError and
// leaves everything else (context cancellation, local failures) untouched.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		msg := gErr.Message
		if msg == "" {
			msg = gErr.Error()
		}
		return warehouse.NewAPIErrorMessage(backendName, msg, err)
	}
	var bqErr *bigquery.Error
	if errors.As(err, &bqErr) {
		msg := bqErr.Message
		if msg == "" {
			msg = bqErr.Error()
		}
		return warehouse.NewAPIErrorMessage(backendName, msg, err)
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Canceled && st.Code() != codes.Unknown {
		return warehouse.NewAPIErrorMessage(backendName, st.Message(), err)
	}
	return err
}

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
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/tools"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

const (
	SchemaToolName = "get_database_schema"
	QueryToolName  = "run_sql_query"
	QueryArgName   = "sql_query"

	// SchemaErrorPrefix introduces schema compilation failures handed to the model.
	SchemaErrorPrefix = "Error al obtener el esquema de la base de datos: "
)

// Toolset exposes the schema compiler and query executor as model tools. Every
// tool returns text.
type Toolset struct {
	compiler *tools.SchemaCompiler
	executor *tools.QueryExecutor
	dataset  warehouse.DatasetHandle
	logger   *zap.Logger
}

func NewToolset(compiler *tools.SchemaCompiler, executor *tools.QueryExecutor, dataset warehouse.DatasetHandle, logger *zap.Logger) *Toolset {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Toolset{compiler: compiler, executor: executor, dataset: dataset, logger: logger}
}

// Declarations describes the tools to the model.
func (t *Toolset) Declarations() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        SchemaToolName,
				Description: "Retrieves the DDL of every table in the dataset together with example rows.",
			},
			{
				Name:        QueryToolName,
				Description: "Executes a read-only SQL query and returns the rows as a JSON array, or an error message.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						QueryArgName: {
							Type:        genai.TypeString,
							Description: "The SQL SELECT statement to execute.",
						},
					},
					Required: []string{QueryArgName},
				},
			},
		},
	}
}

// Schema returns the schema document, or an error message when it cannot be built.
func (t *Toolset) Schema(ctx context.Context) string {
	doc, err := t.compiler.Compile(ctx, t.dataset)
	if err != nil {
		t.logger.Error("schema compilation failed", zap.String("dataset", t.dataset.String()), zap.Error(err))
		return SchemaErrorPrefix + err.Error()
	}
	return doc
}

// Query runs sqlText through the executor.
func (t *Toolset) Query(ctx context.Context, sqlText string) string {
	return t.executor.Run(ctx, sqlText)
}

// Execute is Query with the tagged result kept.
func (t *Toolset) Execute(ctx context.Context, sqlText string) tools.QueryResult {
	return t.executor.Execute(ctx, sqlText)
}

// Call dispatches a function call from the model and wraps the text result.
func (t *Toolset) Call(ctx context.Context, call genai.FunctionCall) genai.FunctionResponse {
	t.logger.Debug("tool call", zap.String("tool", call.Name))

	var result string
	switch call.Name {
	case SchemaToolName:
		result = t.Schema(ctx)
	case QueryToolName:
		sqlText, _ := call.Args[QueryArgName].(string)
		if strings.TrimSpace(sqlText) == "" {
			result = fmt.Sprintf("Error: falta el argumento %q con la consulta SQL.", QueryArgName)
			break
		}
		result = t.Query(ctx, sqlText)
	default:
		result = fmt.Sprintf("Error: herramienta desconocida %q.", call.Name)
	}
	return genai.FunctionResponse{
		Name:     call.Name,
		Response: map[string]any{"result": result},
	}
}

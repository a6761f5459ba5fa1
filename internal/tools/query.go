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
	"fmt"

	"go.uber.org/zap"

	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

// Messages returned to the agent. They are read by a language model answering in
// Spanish, so they are Spanish too.
const (
	ClientUnavailableMessage = "Error: El cliente del almacén de datos no está inicializado. Verifique la autenticación."
	RejectedMessage          = "Error: solo se permiten consultas de lectura (SELECT o WITH). La consulta fue rechazada."
	EmptyResultMessage       = "La consulta se ejecutó con éxito, pero no encontró datos."
	RemoteAPIPrefix          = "Error en la API del almacén de datos: "
	UnexpectedPrefix         = "Ocurrió un error inesperado al ejecutar la consulta: "
)

type ResultKind int

const (
	ResultRows ResultKind = iota
	ResultEmpty
	ResultFault
)

func (k ResultKind) String() string {
	switch k {
	case ResultRows:
		return "rows"
	case ResultEmpty:
		return "empty"
	case ResultFault:
		return "fault"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

type FaultKind int

const (
	FaultNone FaultKind = iota
	FaultClientUnavailable
	FaultRejected
	FaultRemoteAPI
	FaultUnexpected
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultClientUnavailable:
		return "client_unavailable"
	case FaultRejected:
		return "rejected"
	case FaultRemoteAPI:
		return "remote_api"
	case FaultUnexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// QueryResult is the outcome of one query. String flattens it to the text handed
// to the agent.
type QueryResult struct {
	Kind    ResultKind
	Columns []string
	Rows    [][]any
	// JSON holds the encoded rows when Kind is ResultRows.
	JSON    string
	Fault   FaultKind
	Message string
}

func (r QueryResult) RowCount() int {
	return len(r.Rows)
}

func (r QueryResult) String() string {
	switch r.Kind {
	case ResultRows:
		return r.JSON
	case ResultEmpty:
		return EmptyResultMessage
	}
	switch r.Fault {
	case FaultClientUnavailable:
		return ClientUnavailableMessage
	case FaultRejected:
		return RejectedMessage
	case FaultRemoteAPI:
		return RemoteAPIPrefix + r.Message
	default:
		return UnexpectedPrefix + r.Message
	}
}

func faultResult(kind FaultKind, message string) QueryResult {
	return QueryResult{Kind: ResultFault, Fault: kind, Message: message}
}

// QueryExecutor runs agent-generated SQL against the warehouse.
type QueryExecutor struct {
	wh            warehouse.Warehouse
	logger        *zap.Logger
	readOnlyGuard bool
}

// NewQueryExecutor returns an executor over wh. A nil wh is allowed: every call then
// reports the client as unavailable.
func NewQueryExecutor(wh warehouse.Warehouse, logger *zap.Logger, readOnlyGuard bool) *QueryExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryExecutor{wh: wh, logger: logger, readOnlyGuard: readOnlyGuard}
}

// Execute never panics and never returns an error; every failure is a fault result.
func (e *QueryExecutor) Execute(ctx context.Context, sqlText string) (result QueryResult) {
	if e.wh == nil {
		e.logger.Error("query not executed", zap.String("reason", "warehouse client is not initialized"))
		return faultResult(FaultClientUnavailable, "")
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("query panicked", zap.Any("panic", r))
			result = faultResult(FaultUnexpected, fmt.Sprint(r))
		}
	}()

	e.logger.Info("executing query", zap.String("sql", sqlText))

	if e.readOnlyGuard {
		if err := CheckReadOnly(e.wh.Syntax().Lexicon, sqlText); err != nil {
			e.logger.Warn("query rejected", zap.Error(err))
			return faultResult(FaultRejected, err.Error())
		}
	}

	rs, err := e.wh.Query(ctx, sqlText)
	if err != nil {
		if apiErr, ok := warehouse.AsAPIError(err); ok {
			e.logger.Error("query failed", zap.String("backend", apiErr.Backend), zap.Error(err))
			return faultResult(FaultRemoteAPI, apiErr.Message)
		}
		e.logger.Error("query failed unexpectedly", zap.Error(err))
		return faultResult(FaultUnexpected, err.Error())
	}
	if rs == nil || len(rs.Rows) == 0 {
		e.logger.Info("query returned no rows")
		return QueryResult{Kind: ResultEmpty}
	}

	encoded, err := encodeRows(rs.Columns, rs.Rows)
	if err != nil {
		e.logger.Error("encoding query result failed", zap.Error(err))
		return faultResult(FaultUnexpected, err.Error())
	}
	e.logger.Info("query returned rows", zap.Int("rows", len(rs.Rows)))
	return QueryResult{Kind: ResultRows, Columns: rs.Columns, Rows: rs.Rows, JSON: encoded}
}

// Run executes sqlText and returns the text handed to the agent.
func (e *QueryExecutor) Run(ctx context.Context, sqlText string) string {
	return e.Execute(ctx, sqlText).String()
}

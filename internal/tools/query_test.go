package tools

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

const totalQuery = "SELECT INSTITUCION, SUM(MONTO) AS TOTAL FROM `gob-sv.gastos.devengado` GROUP BY 1"

func TestExecuteClientUnavailable(t *testing.T) {
	// The schema side holds a live client; the executor was built without one.
	wh := new(mockWarehouse)
	wh.On("ListTables", mock.Anything, testDataset).Return([]string{}, nil)
	_, err := NewSchemaCompiler(wh, nil, SchemaOptions{}).Compile(context.Background(), testDataset)
	require.NoError(t, err)
	exec := NewQueryExecutor(nil, nil, true)

	res := exec.Execute(context.Background(), totalQuery)
	assert.Equal(t, ResultFault, res.Kind)
	assert.Equal(t, FaultClientUnavailable, res.Fault)
	assert.Equal(t, ClientUnavailableMessage, exec.Run(context.Background(), totalQuery))
	wh.AssertNumberOfCalls(t, "Query", 0)
}

func TestExecuteRejectsPerDialect(t *testing.T) {
	const batch = `SELECT 'x\' AS a; DROP TABLE main.devengado; SELECT '1' AS b`

	wh := &mockWarehouse{syntax: &warehouse.Syntax{Lexicon: warehouse.StandardSQL}}
	res := NewQueryExecutor(wh, nil, true).Execute(context.Background(), batch)
	assert.Equal(t, FaultRejected, res.Fault)
	assert.Equal(t, RejectedMessage, res.String())
	wh.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestExecuteEmptyResult(t *testing.T) {
	wh := new(mockWarehouse)
	wh.On("Query", mock.Anything, totalQuery).
		Return(&warehouse.ResultSet{Columns: []string{"INSTITUCION", "TOTAL"}, Rows: [][]any{}}, nil)

	out := NewQueryExecutor(wh, nil, true).Run(context.Background(), totalQuery)
	assert.Equal(t, EmptyResultMessage, out)
	assert.NotEqual(t, "[]", out)
	wh.AssertNumberOfCalls(t, "Query", 1)
}

func TestExecuteRows(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.FixedZone("CST", -6*3600))
	wh := new(mockWarehouse)
	wh.On("Query", mock.Anything, totalQuery).Return(&warehouse.ResultSet{
		Columns: []string{"INSTITUCION", "TOTAL", "ACTUALIZADO"},
		Rows: [][]any{
			{"Ministerio de Hacienda", big.NewRat(125075, 100), ts},
			{"Ministerio de Salud", big.NewRat(3, 1), nil},
		},
	}, nil)

	res := NewQueryExecutor(wh, nil, true).Execute(context.Background(), totalQuery)
	require.Equal(t, ResultRows, res.Kind)
	assert.Equal(t, 2, res.RowCount())

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.String()), &decoded))
	require.Len(t, decoded, 2)
	for _, row := range decoded {
		assert.ElementsMatch(t, []string{"INSTITUCION", "TOTAL", "ACTUALIZADO"}, keys(row))
	}
	assert.Equal(t, "Ministerio de Hacienda", decoded[0]["INSTITUCION"])
	assert.Equal(t, 1250.75, decoded[0]["TOTAL"])
	assert.Equal(t, "2024-03-01T16:30:00Z", decoded[0]["ACTUALIZADO"])
	assert.Nil(t, decoded[1]["ACTUALIZADO"])

	// Keys keep column order.
	out := res.String()
	assert.Less(t, strings.Index(out, `"INSTITUCION"`), strings.Index(out, `"TOTAL"`))
	assert.Less(t, strings.Index(out, `"TOTAL"`), strings.Index(out, `"ACTUALIZADO"`))
}

func TestExecuteIdempotent(t *testing.T) {
	rs := &warehouse.ResultSet{
		Columns: []string{"MES", "TOTAL"},
		Rows:    [][]any{{int64(1), 10.5}, {int64(2), 11.25}},
	}
	wh := new(mockWarehouse)
	wh.On("Query", mock.Anything, totalQuery).Return(rs, nil).Twice()

	exec := NewQueryExecutor(wh, nil, true)
	first := exec.Run(context.Background(), totalQuery)
	second := exec.Run(context.Background(), totalQuery)
	assert.Equal(t, first, second)
	assert.JSONEq(t, `[{"MES":1,"TOTAL":10.5},{"MES":2,"TOTAL":11.25}]`, first)
	wh.AssertExpectations(t)
}

func TestExecuteRemoteAPIFault(t *testing.T) {
	const malformed = "SELEC * FROM devengado"
	remote := "Syntax error: Unexpected identifier \"SELEC\" at [1:1]"
	wh := new(mockWarehouse)
	wh.On("Query", mock.Anything, malformed).
		Return(nil, warehouse.NewAPIErrorMessage("bigquery", remote, errors.New("googleapi: Error 400")))

	var out string
	require.NotPanics(t, func() {
		out = NewQueryExecutor(wh, nil, false).Run(context.Background(), malformed)
	})
	assert.Equal(t, RemoteAPIPrefix+remote, out)
}

func TestExecuteUnexpectedFault(t *testing.T) {
	wh := new(mockWarehouse)
	wh.On("Query", mock.Anything, totalQuery).Return(nil, errors.New("connection reset by peer"))

	out := NewQueryExecutor(wh, nil, true).Run(context.Background(), totalQuery)
	assert.Equal(t, UnexpectedPrefix+"connection reset by peer", out)
}

func TestExecuteRecoversPanic(t *testing.T) {
	wh := new(mockWarehouse)
	wh.On("Query", mock.Anything, totalQuery).Run(func(mock.Arguments) { panic("driver bug") })

	res := NewQueryExecutor(wh, nil, true).Execute(context.Background(), totalQuery)
	assert.Equal(t, FaultUnexpected, res.Fault)
	assert.Equal(t, UnexpectedPrefix+"driver bug", res.String())
}

func TestExecuteReadOnlyGuard(t *testing.T) {
	const drop = "DROP TABLE `gob-sv.gastos.devengado`"

	t.Run("Enabled", func(t *testing.T) {
		wh := new(mockWarehouse)
		res := NewQueryExecutor(wh, nil, true).Execute(context.Background(), drop)
		assert.Equal(t, FaultRejected, res.Fault)
		assert.Equal(t, RejectedMessage, res.String())
		wh.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("Disabled", func(t *testing.T) {
		wh := new(mockWarehouse)
		wh.On("Query", mock.Anything, drop).Return(&warehouse.ResultSet{}, nil)
		assert.Equal(t, EmptyResultMessage, NewQueryExecutor(wh, nil, false).Run(context.Background(), drop))
	})
}

func TestExecuteLogs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	wh := new(mockWarehouse)
	wh.On("Query", mock.Anything, totalQuery).
		Return(&warehouse.ResultSet{Columns: []string{"n"}, Rows: [][]any{{int64(1)}, {int64(2)}}}, nil)

	NewQueryExecutor(wh, zap.New(core), true).Run(context.Background(), totalQuery)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "executing query", entries[0].Message)
	assert.Equal(t, totalQuery, entries[0].ContextMap()["sql"])
	assert.Equal(t, "query returned rows", entries[1].Message)
	assert.Equal(t, int64(2), entries[1].ContextMap()["rows"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

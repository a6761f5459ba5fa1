package tools

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/speca-google/goes-agents-poc/internal/warehouse"
)

type mockWarehouse struct {
	mock.Mock
	// syntax defaults to GoogleSQL when nil.
	syntax *warehouse.Syntax
}

var _ warehouse.Warehouse = (*mockWarehouse)(nil)

var testDataset = warehouse.DatasetHandle{Project: "gob-sv", Dataset: "gastos"}

func (m *mockWarehouse) Dataset() warehouse.DatasetHandle {
	return testDataset
}

func (m *mockWarehouse) ListTables(ctx context.Context, ds warehouse.DatasetHandle) ([]string, error) {
	args := m.Called(ctx, ds)
	tables, _ := args.Get(0).([]string)
	return tables, args.Error(1)
}

func (m *mockWarehouse) TableMetadata(ctx context.Context, ds warehouse.DatasetHandle, table string) (*warehouse.TableDescriptor, error) {
	args := m.Called(ctx, ds, table)
	md, _ := args.Get(0).(*warehouse.TableDescriptor)
	return md, args.Error(1)
}

func (m *mockWarehouse) PreviewRows(ctx context.Context, ds warehouse.DatasetHandle, table string, max int) ([]warehouse.SampleRow, error) {
	args := m.Called(ctx, ds, table, max)
	rows, _ := args.Get(0).([]warehouse.SampleRow)
	return rows, args.Error(1)
}

func (m *mockWarehouse) Query(ctx context.Context, sqlText string) (*warehouse.ResultSet, error) {
	args := m.Called(ctx, sqlText)
	rs, _ := args.Get(0).(*warehouse.ResultSet)
	return rs, args.Error(1)
}

func (m *mockWarehouse) Syntax() warehouse.Syntax {
	if m.syntax == nil {
		return warehouse.Syntax{Lexicon: warehouse.GoogleSQL}
	}
	return *m.syntax
}

func (m *mockWarehouse) Close() error {
	return m.Called().Error(0)
}

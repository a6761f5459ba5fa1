package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speca-google/goes-agents-poc/internal/config"
	"github.com/speca-google/goes-agents-poc/internal/warehouse"
	"github.com/speca-google/goes-agents-poc/internal/warehouse/sqlwarehouse"
)

func TestPostgresQuoteIdentifier(t *testing.T) {
	d := postgresDialect{}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Simple name", "devengado", `"devengado"`},
		{"Name with spaces", "NOMBRE DE LA INSTITUCIÓN", `"NOMBRE DE LA INSTITUCIÓN"`},
		{"Name with quotes", `my"table`, `"my""table"`},
		{"Empty name", "", `""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.QuoteIdentifier(tt.in))
		})
	}
}

func TestPostgresStandardDSN(t *testing.T) {
	dsn, err := standardDSN(config.WarehouseConfig{Host: "localhost", User: "lector", Password: "s3cr3t", ProjectID: "finanzas"})
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=lector password=s3cr3t dbname=finanzas sslmode=disable", dsn)

	dsn, err = standardDSN(config.WarehouseConfig{Host: "db", Port: 6432, DBName: "fiscal", SSLMode: "Require"})
	require.NoError(t, err)
	assert.Contains(t, dsn, "port=6432")
	assert.Contains(t, dsn, "dbname=fiscal")
	assert.Contains(t, dsn, "sslmode=require")

	_, err = standardDSN(config.WarehouseConfig{SSLMode: "sometimes"})
	assert.ErrorContains(t, err, "unsupported sslmode")
}

func TestPostgresCloudSQLRequiresInstance(t *testing.T) {
	_, err := postgresDialect{}.CreateCloudSQLPool(config.WarehouseConfig{User: "lector"})
	assert.Error(t, err)
}

func TestPostgresRegistered(t *testing.T) {
	for _, name := range []string{"postgres", "cloudsqlpostgres"} {
		_, err := warehouse.GetBackend(name)
		assert.NoError(t, err, name)
	}
}

func TestPostgresTableMetadata(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()
	db := sqlwarehouse.New(pool, postgresDialect{}, "public", nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT table_type")).
		WithArgs("public", "presupuesto").
		WillReturnRows(sqlmock.NewRows([]string{"table_type"}).AddRow("BASE TABLE"))
	mock.ExpectQuery(regexp.QuoteMeta(postgresDialect{}.ColumnsQuery())).
		WithArgs("public", "presupuesto").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "col_description"}).
			AddRow("ejercicio", "integer", "Año fiscal").
			AddRow("fuentes", "text[]", nil))

	md, err := db.TableMetadata(context.Background(), db.Dataset(), "presupuesto")
	require.NoError(t, err)
	assert.Equal(t, []warehouse.ColumnDescriptor{
		{Name: "ejercicio", Type: "INTEGER", Description: "Año fiscal"},
		{Name: "fuentes", Type: "TEXT", Repeated: true},
	}, md.Columns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSyntax(t *testing.T) {
	db := sqlwarehouse.New(nil, postgresDialect{}, "fiscal", nil)
	assert.Equal(t, warehouse.StandardSQL, db.Syntax().Lexicon)
	assert.Equal(t, `"fiscal"."devengado"`, db.Syntax().QuoteTableRef(db.Dataset(), "devengado"))
}

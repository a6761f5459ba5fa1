package mysql

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

func TestMySQLQuoteIdentifier(t *testing.T) {
	d := mysqlDialect{}
	tests := []struct {
		in   string
		want string
	}{
		{"devengado", "`devengado`"},
		{"my table", "`my table`"},
		{"my`table", "`my``table`"},
		{"", "``"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, d.QuoteIdentifier(tt.in), tt.in)
	}
}

func TestMySQLStandardDSN(t *testing.T) {
	dsn := standardDSN(config.WarehouseConfig{Host: "10.0.0.5", User: "lector", Password: "pw", DBName: "fiscal"})
	assert.Contains(t, dsn, "lector:pw@tcp(10.0.0.5:3306)/fiscal")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestMySQLCloudSQLMissingParameters(t *testing.T) {
	_, err := mysqlDialect{}.CreateCloudSQLPool(config.WarehouseConfig{User: "lector"})
	assert.ErrorContains(t, err, "missing required CloudSQL connection parameter")
}

func TestMySQLRegistered(t *testing.T) {
	for _, name := range []string{"mysql", "cloudsqlmysql"} {
		_, err := warehouse.GetBackend(name)
		assert.NoError(t, err, name)
	}
}

func TestMySQLQueryRunsReadOnly(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()
	db := sqlwarehouse.New(pool, mysqlDialect{}, "fiscal", nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS total FROM devengado")).
		WillReturnRows(sqlmock.NewRows([]string{"total"}).AddRow(int64(42)))
	mock.ExpectRollback()

	rs, err := db.Query(context.Background(), "SELECT COUNT(*) AS total FROM devengado")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(42)}}, rs.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLPreview(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()
	db := sqlwarehouse.New(pool, mysqlDialect{}, "fiscal", nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `fiscal`.`devengado` LIMIT 5")).
		WillReturnRows(sqlmock.NewRows([]string{"mes"}).AddRow(int64(1)))

	rows, err := db.PreviewRows(context.Background(), db.Dataset(), "devengado", 5)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLSyntax(t *testing.T) {
	db := sqlwarehouse.New(nil, mysqlDialect{}, "fiscal", nil)
	assert.Equal(t, warehouse.MySQL, db.Syntax().Lexicon)
	assert.Equal(t, "`fiscal`.`devengado`", db.Syntax().QuoteTableRef(db.Dataset(), "devengado"))
}

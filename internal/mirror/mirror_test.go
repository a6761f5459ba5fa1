package mirror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/parquet-go/parquet-go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speca-google/goes-agents-poc/internal/storage/s3"
)

type devengadoRow struct {
	Ejercicio   int64   `parquet:"EJERCICIO"`
	Institucion string  `parquet:"INSTITUCION"`
	Devengado   float64 `parquet:"DEVENGADO"`
}

type fuenteRow struct {
	Codigo int64  `parquet:"codigo"`
	Nombre string `parquet:"nombre"`
}

func encode[T any](t *testing.T, rows []T) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	w := parquet.NewGenericWriter[T](buf)
	_, err := w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type fakeSource struct {
	objects map[string][]byte
	listErr error
}

func (f *fakeSource) List(_ context.Context, suffix string) ([]s3.ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []s3.ObjectInfo
	for k, v := range f.objects {
		out = append(out, s3.ObjectInfo{Key: k, Size: int64(len(v))})
	}
	return out, nil
}

func (f *fakeSource) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, s3.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestTableName(t *testing.T) {
	tests := map[string]string{
		"devengado/part-0.parquet":           "devengado",
		"gastos/Devengado 2024/x.parquet":    "devengado_2024",
		"fuentes.parquet":                    "fuentes",
		"devengado/anio=2024/part-0.parquet": "devengado",
		"anio=2024/part-0.parquet":           "",
		"2024/part-0.parquet":                "t_2024",
		"/presupuesto-votado/p.parquet":      "presupuesto_votado",
	}
	for key, want := range tests {
		assert.Equal(t, want, TableName(key), key)
	}
}

func TestCreateTableSQL(t *testing.T) {
	got := CreateTableSQL("gastos", "devengado", []string{"/tmp/a.parquet", "/tmp/o'brien.parquet"})
	assert.Equal(t, `CREATE OR REPLACE TABLE "gastos"."devengado" AS SELECT * FROM read_parquet(['/tmp/a.parquet', '/tmp/o''brien.parquet'])`, got)
}

func TestPlanGroupsObjectsByTable(t *testing.T) {
	src := &fakeSource{objects: map[string][]byte{
		"devengado/part-1.parquet": {1},
		"devengado/part-0.parquet": {1, 2},
		"fuentes.parquet":          {1},
		"anio=2024/x.parquet":      {1},
	}}
	loader := NewLoader(src, nil, afero.NewMemMapFs(), "/work", "gastos", nil)

	plans, err := loader.Plan(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "devengado", plans[0].Table)
	assert.Len(t, plans[0].Objects, 2)
	assert.EqualValues(t, 3, plans[0].Size())
	assert.Equal(t, "fuentes", plans[1].Table)
}

func TestPlanListError(t *testing.T) {
	loader := NewLoader(&fakeSource{listErr: errors.New("access denied")}, nil, afero.NewMemMapFs(), "/work", "gastos", nil)
	_, err := loader.Plan(context.Background())
	assert.EqualError(t, err, "access denied")
}

func TestLoad(t *testing.T) {
	src := &fakeSource{objects: map[string][]byte{
		"devengado/part-0.parquet": encode(t, []devengadoRow{{2023, "Ministerio de Hacienda", 10.5}, {2023, "Ministerio de Salud", 7}}),
		"devengado/part-1.parquet": encode(t, []devengadoRow{{2024, "Ministerio de Hacienda", 3.25}}),
		"fuentes.parquet":          encode(t, []fuenteRow{{11, "Fondo General"}}),
	}}
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "gastos"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE OR REPLACE TABLE "gastos"."devengado" AS SELECT * FROM read_parquet(['/work/devengado/part-0.parquet', '/work/devengado/part-1.parquet'])`)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE OR REPLACE TABLE "gastos"."fuentes" AS SELECT * FROM read_parquet(['/work/fuentes.parquet'])`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	fs := afero.NewMemMapFs()
	loader := NewLoader(src, db, fs, "/work", "gastos", nil)
	plans, err := loader.Plan(context.Background())
	require.NoError(t, err)

	reports, err := loader.Load(context.Background(), plans)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "devengado", reports[0].Table)
	assert.Equal(t, 2, reports[0].Files)
	assert.EqualValues(t, 3, reports[0].Rows)
	assert.ElementsMatch(t, []string{"EJERCICIO", "INSTITUCION", "DEVENGADO"}, reports[0].Columns)
	assert.Equal(t, "fuentes", reports[1].Table)
	assert.EqualValues(t, 1, reports[1].Rows)
	assert.ElementsMatch(t, []string{"codigo", "nombre"}, reports[1].Columns)

	exists, err := afero.Exists(fs, "/work/devengado/part-1.parquet")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRejectsInvalidParquet(t *testing.T) {
	src := &fakeSource{objects: map[string][]byte{
		"devengado/part-0.parquet": []byte("not a parquet file"),
	}}
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "gastos"`)).WillReturnResult(sqlmock.NewResult(0, 0))

	loader := NewLoader(src, db, afero.NewMemMapFs(), "/work", "gastos", nil)
	plans, err := loader.Plan(context.Background())
	require.NoError(t, err)

	reports, err := loader.Load(context.Background(), plans)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid parquet object devengado/part-0.parquet")
	assert.Empty(t, reports)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRejectsKeyOutsideWorkDir(t *testing.T) {
	src := &fakeSource{objects: map[string][]byte{
		"../fuera/part-0.parquet": encode(t, []fuenteRow{{11, "Fondo General"}}),
	}}
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "gastos"`)).WillReturnResult(sqlmock.NewResult(0, 0))

	fs := afero.NewMemMapFs()
	loader := NewLoader(src, db, fs, "/work", "gastos", nil)
	plans, err := loader.Plan(context.Background())
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), plans)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes the work directory")

	outside, err := afero.DirExists(fs, "/fuera")
	require.NoError(t, err)
	assert.False(t, outside)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRejectsMismatchedColumns(t *testing.T) {
	src := &fakeSource{objects: map[string][]byte{
		"devengado/part-0.parquet": encode(t, []devengadoRow{{2023, "Ministerio de Hacienda", 10.5}}),
		"devengado/part-1.parquet": encode(t, []fuenteRow{{11, "Fondo General"}}),
	}}
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "gastos"`)).WillReturnResult(sqlmock.NewResult(0, 0))

	loader := NewLoader(src, db, afero.NewMemMapFs(), "/work", "gastos", nil)
	plans, err := loader.Plan(context.Background())
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), plans)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has columns")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCreateTableError(t *testing.T) {
	src := &fakeSource{objects: map[string][]byte{
		"fuentes.parquet": encode(t, []fuenteRow{{11, "Fondo General"}}),
	}}
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "gastos"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE OR REPLACE TABLE").WillReturnError(errors.New("IO Error: No files found"))

	loader := NewLoader(src, db, afero.NewMemMapFs(), "/work", "gastos", nil)
	plans, err := loader.Plan(context.Background())
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), plans)
	assert.EqualError(t, err, "load table fuentes: IO Error: No files found")
}

package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	objects    []ObjectInfo
	listPrefix string
	getKey     string
	getErr     error
}

func (f *fakeClient) List(_ context.Context, _, prefix string) ([]ObjectInfo, error) {
	f.listPrefix = prefix
	var out []ObjectInfo
	for _, o := range f.objects {
		if strings.HasPrefix(o.Key, prefix) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeClient) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	f.getKey = key
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func TestListFiltersBySuffixAndPrefix(t *testing.T) {
	fake := &fakeClient{objects: []ObjectInfo{
		{Key: "exportes/gastos/devengado/part-2.parquet", Size: 20},
		{Key: "exportes/gastos/devengado/part-1.PARQUET", Size: 10},
		{Key: "exportes/gastos/devengado/_SUCCESS"},
		{Key: "exportes/gastos/fuentes/"},
		{Key: "otros/x.parquet"},
	}}
	store, err := NewWithClient("bucket-a", "/exportes/gastos/", fake)
	require.NoError(t, err)

	objects, err := store.List(context.Background(), ".parquet")
	require.NoError(t, err)
	assert.Equal(t, "exportes/gastos/", fake.listPrefix)
	assert.Equal(t, []ObjectInfo{
		{Key: "devengado/part-1.PARQUET", Size: 10},
		{Key: "devengado/part-2.parquet", Size: 20},
	}, objects)
}

func TestGetUsesPrefix(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "exportes", fake)
	require.NoError(t, err)

	rc, err := store.Get(context.Background(), "/devengado/part-1.parquet")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "exportes/devengado/part-1.parquet", fake.getKey)
}

func TestGetRejectsPathTraversal(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{})
	require.NoError(t, err)
	for _, key := range []string{"../secretos", "", "a/../../b"} {
		_, err := store.Get(context.Background(), key)
		assert.Error(t, err, key)
	}
}

func TestGetNotFound(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{getErr: ErrObjectNotFound})
	require.NoError(t, err)
	_, err = store.Get(context.Background(), "nada.parquet")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestNewWithClientValidation(t *testing.T) {
	_, err := NewWithClient("bucket", "", nil)
	assert.Error(t, err)
	_, err = NewWithClient(" ", "", &fakeClient{})
	assert.Error(t, err)
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{"https://minio.example.com", false, "minio.example.com", true},
		{"http://localhost:9000", true, "localhost:9000", false},
		{"storage.googleapis.com", true, "storage.googleapis.com", true},
	}
	for _, tt := range tests {
		host, secure, err := parseEndpoint(tt.raw, tt.useSSL)
		require.NoError(t, err)
		assert.Equal(t, tt.wantHost, host)
		assert.Equal(t, tt.wantSecure, secure)
	}
	_, _, err := parseEndpoint("", false)
	assert.Error(t, err)
}

func TestMapMinioErr(t *testing.T) {
	assert.ErrorIs(t, mapMinioErr(minio.ErrorResponse{Code: "NoSuchKey"}), ErrObjectNotFound)
	other := errors.New("boom")
	assert.Equal(t, other, mapMinioErr(other))
	assert.NoError(t, mapMinioErr(nil))
}

package storage_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"catalog-reconciler/core/storage"
	"catalog-reconciler/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "batches/b1.json", storage.BatchKey("b1"))
	assert.Equal(t, "runs/r1.json", storage.RunKey("r1"))
	assert.Equal(t, []string{"batches/", "runs/"}, storage.Prefixes())
}

func TestArchive_PutJSON(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("PutObject", ctx, "archive", "batches/b1.json", mock.Anything, mock.AnythingOfType("int64"), mock.Anything).
		Return(minio.UploadInfo{}, nil).Once()

	a := storage.NewArchive(client, "archive", zap.NewNop())
	require.NoError(t, a.PutJSON(ctx, storage.BatchKey("b1"), map[string]int{"fills": 2}))
	client.AssertExpectations(t)
}

func TestArchive_StoreSwallowsErrors(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("PutObject", ctx, "archive", "runs/r1.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("connection refused")).Once()

	a := storage.NewArchive(client, "archive", nil)
	assert.Error(t, a.PutJSON(ctx, storage.RunKey("r1"), struct{}{}))

	client.On("PutObject", ctx, "archive", "runs/r1.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("connection refused")).Once()
	assert.NotPanics(t, func() { a.Store(ctx, storage.RunKey("r1"), struct{}{}) })
}

func TestArchive_Disabled(t *testing.T) {
	var nilArchive *storage.Archive
	assert.False(t, nilArchive.Enabled())
	assert.NoError(t, nilArchive.PutJSON(context.Background(), "x", 1))

	a := storage.NewArchive(nil, "archive", nil)
	assert.False(t, a.Enabled())
	assert.Error(t, a.GetJSON(context.Background(), "x", new(int)))
}

func TestArchive_GetJSON(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("GetObject", ctx, "archive", "runs/r1.json", mock.Anything).
		Return(io.NopCloser(strings.NewReader(`{"audited":3}`)), nil)

	var report struct {
		Audited int `json:"audited"`
	}
	a := storage.NewArchive(client, "archive", nil)
	require.NoError(t, a.GetJSON(ctx, storage.RunKey("r1"), &report))
	assert.Equal(t, 3, report.Audited)
}

func TestArchive_EnsureBucket(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("BucketExists", ctx, "archive").Return(false, nil)
	client.On("MakeBucket", ctx, "archive", minio.MakeBucketOptions{Region: "eu-west-1"}).Return(nil)

	a := storage.NewArchive(client, "archive", nil)
	require.NoError(t, a.EnsureBucket(ctx, "eu-west-1"))
	client.AssertExpectations(t)
}

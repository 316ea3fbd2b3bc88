package checks

import (
	"context"
	"errors"
	"testing"

	"catalog-reconciler/core/models"
	"catalog-reconciler/core/storage"
	"catalog-reconciler/core/storage/mocks"
	"catalog-reconciler/core/store/storetest"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckArchive(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)

	_, err := st.CreateBatch(ctx, &models.MergeBatch{ID: "b-1", Status: models.BatchCompleted})
	require.NoError(t, err)
	_, err = st.CreateRun(ctx, &models.AuditRun{ID: "r-1", Scope: models.ScopeAll, Status: models.RunCompleted})
	require.NoError(t, err)

	mockClient := new(mocks.Client)
	mockClient.On("ListObjects", mock.Anything, "archive", mocks.OnPrefix(storage.BatchPrefix)).
		Return(mocks.Listing(storage.BatchPrefix, storage.BatchKey("b-1"), storage.BatchKey("b-gone")))
	mockClient.On("ListObjects", mock.Anything, "archive", mocks.OnPrefix(storage.RunPrefix)).
		Return(mocks.Listing(storage.RunKey("r-1"), storage.RunKey("r-gone")))

	report, err := CheckArchive(ctx, mockClient, "archive", st.DB())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Scanned)
	assert.ElementsMatch(t, []string{storage.BatchKey("b-gone"), storage.RunKey("r-gone")}, report.Orphans)
}

func TestCheckArchive_ListError(t *testing.T) {
	st := storetest.New(t)
	ch := make(chan minio.ObjectInfo, 1)
	ch <- minio.ObjectInfo{Err: errors.New("access denied")}
	close(ch)

	mockClient := new(mocks.Client)
	mockClient.On("ListObjects", mock.Anything, "archive", mock.Anything).Return((<-chan minio.ObjectInfo)(ch))

	_, err := CheckArchive(context.Background(), mockClient, "archive", st.DB())
	assert.ErrorContains(t, err, "access denied")
}

func TestCheckArchive_NilDB(t *testing.T) {
	_, err := CheckArchive(context.Background(), new(mocks.Client), "archive", nil)
	assert.Error(t, err)
}

func TestRemoveOrphans(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.Client)
		mockClient.On("RemoveObjects", mock.Anything, "archive", mock.Anything, mock.Anything).Return(nil)

		err := RemoveOrphans(context.Background(), mockClient, "archive", zap.NewNop(), []string{"runs/x.json"})
		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Partial Failure", func(t *testing.T) {
		errs := make(chan minio.RemoveObjectError, 1)
		errs <- minio.RemoveObjectError{ObjectName: "runs/x.json", Err: errors.New("denied")}
		close(errs)

		mockClient := new(mocks.Client)
		mockClient.On("RemoveObjects", mock.Anything, "archive", mock.Anything, mock.Anything).
			Return((<-chan minio.RemoveObjectError)(errs))

		err := RemoveOrphans(context.Background(), mockClient, "archive", zap.NewNop(), []string{"runs/x.json", "runs/y.json"})
		assert.ErrorContains(t, err, "runs/x.json")
	})
}

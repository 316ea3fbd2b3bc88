package integrity

import (
	"context"
	"errors"
	"testing"

	"catalog-reconciler/core/storage/mocks"
	"catalog-reconciler/core/store/storetest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// setupMockDB creates a mock GORM DB for testing.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func TestService_NoStorage(t *testing.T) {
	svc := NewService(nil, "test-bucket", zap.NewNop(), nil)
	ctx := context.Background()

	_, err := svc.CheckStructure(ctx)
	assert.ErrorIs(t, err, errNoStorage)
	assert.ErrorIs(t, svc.FixStructure(ctx, []string{"runs/"}), errNoStorage)
	_, err = svc.CheckArchive(ctx)
	assert.ErrorIs(t, err, errNoStorage)
	assert.ErrorIs(t, svc.FixArchive(ctx, []string{"runs/x.json"}), errNoStorage)
}

func TestService_FixArchive_NothingToDo(t *testing.T) {
	mockClient := new(mocks.Client)
	svc := NewService(mockClient, "test-bucket", zap.NewNop(), nil)

	assert.NoError(t, svc.FixArchive(context.Background(), nil))
	mockClient.AssertNotCalled(t, "RemoveObjects", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_CheckArchive(t *testing.T) {
	st := storetest.New(t)
	ch := make(chan minio.ObjectInfo, 1)
	ch <- minio.ObjectInfo{Key: "runs/lost.json"}
	close(ch)

	mockClient := new(mocks.Client)
	mockClient.On("ListObjects", mock.Anything, "test-bucket", mock.MatchedBy(func(o minio.ListObjectsOptions) bool {
		return o.Prefix == "runs/"
	})).Return((<-chan minio.ObjectInfo)(ch))
	mockClient.On("ListObjects", mock.Anything, "test-bucket", mock.Anything).Return(nil)

	svc := NewService(mockClient, "test-bucket", zap.NewNop(), st.DB())
	report, err := svc.CheckArchive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/lost.json"}, report.Orphans)
}

func TestService_DatabaseErrors(t *testing.T) {
	db, sqlMock := setupMockDB(t)
	sqlMock.ExpectQuery(".*").WillReturnError(errors.New("db down"))
	sqlMock.ExpectQuery(".*").WillReturnError(errors.New("db down"))

	svc := NewService(nil, "test-bucket", zap.NewNop(), db)

	_, err := svc.CheckLedger(context.Background())
	assert.ErrorContains(t, err, "orphan candidates")

	_, err = svc.CheckSchema()
	assert.ErrorContains(t, err, "db down")
}

func TestService_CheckLedger(t *testing.T) {
	svc := NewService(nil, "test-bucket", zap.NewNop(), storetest.New(t).DB())

	report, err := svc.CheckLedger(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
}

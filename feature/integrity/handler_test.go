package integrity

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"catalog-reconciler/core/models"
	"catalog-reconciler/core/storage/mocks"
	"catalog-reconciler/core/store/storetest"

	"github.com/gofiber/fiber/v2"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestApp(t *testing.T) (*fiber.App, *mocks.Client, *gorm.DB) {
	app := fiber.New()
	mockClient := new(mocks.Client)
	db := storetest.New(t).DB()
	svc := NewService(mockClient, "test-bucket", zap.NewNop(), db)
	handler := NewHandler(svc)
	handler.RegisterRoutes(app)
	return app, mockClient, db
}

func decode(t *testing.T, app *fiber.App, target string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", target, nil))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHandleStructureCheck(t *testing.T) {
	app, mockClient, _ := setupTestApp(t)

	mockClient.On("BucketExists", mock.Anything, "test-bucket").Return(true, nil)
	mockClient.On("ListObjects", mock.Anything, "test-bucket", mock.Anything).Return(nil)

	status, body := decode(t, app, "/integrity/structure")
	assert.Equal(t, 200, status)
	assert.Equal(t, "checked", body["status"])
	assert.Len(t, body["missing"], 2)
}

func TestHandleStructureCheck_Fix(t *testing.T) {
	app, mockClient, _ := setupTestApp(t)

	mockClient.On("BucketExists", mock.Anything, "test-bucket").Return(true, nil)
	mockClient.On("ListObjects", mock.Anything, "test-bucket", mock.Anything).Return(nil)
	mockClient.On("PutObject", mock.Anything, "test-bucket", mock.Anything, mock.Anything, int64(0), mock.Anything).
		Return(minio.UploadInfo{}, nil)

	status, body := decode(t, app, "/integrity/structure?fix=true")
	assert.Equal(t, 200, status)
	assert.Equal(t, "fixed", body["status"])
	mockClient.AssertNumberOfCalls(t, "PutObject", 2)
}

func TestHandleStructureCheck_BucketMissing(t *testing.T) {
	app, mockClient, _ := setupTestApp(t)
	mockClient.On("BucketExists", mock.Anything, "test-bucket").Return(false, nil)

	status, body := decode(t, app, "/integrity/structure")
	assert.Equal(t, 500, status)
	assert.Contains(t, body["error"], "does not exist")
}

func TestHandleArchiveCheck_Fix(t *testing.T) {
	app, mockClient, _ := setupTestApp(t)

	ch := make(chan minio.ObjectInfo, 1)
	ch <- minio.ObjectInfo{Key: "batches/gone.json"}
	close(ch)
	mockClient.On("ListObjects", mock.Anything, "test-bucket", mock.MatchedBy(func(o minio.ListObjectsOptions) bool {
		return o.Prefix == "batches/"
	})).Return((<-chan minio.ObjectInfo)(ch))
	mockClient.On("ListObjects", mock.Anything, "test-bucket", mock.Anything).Return(nil)
	mockClient.On("RemoveObjects", mock.Anything, "test-bucket", mock.Anything, mock.Anything).Return(nil)

	status, body := decode(t, app, "/integrity/archive?fix=1")
	assert.Equal(t, 200, status)
	assert.Equal(t, "fixed", body["status"])
	assert.Equal(t, []any{"batches/gone.json"}, body["removed"])
}

func TestHandleSchemaCheck(t *testing.T) {
	app, _, _ := setupTestApp(t)

	status, body := decode(t, app, "/integrity/schema")
	assert.Equal(t, 200, status)
	assert.Equal(t, true, body["matched"])
}

func TestHandleLedgerCheck(t *testing.T) {
	app, _, db := setupTestApp(t)
	require.NoError(t, db.Create(&models.MergeBatch{
		ID: "b-stuck", Status: models.BatchPending, CreatedAt: time.Now().Add(-3 * time.Hour),
	}).Error)

	status, body := decode(t, app, "/integrity/ledger")
	assert.Equal(t, 200, status)
	assert.Equal(t, []any{"b-stuck"}, body["stuck_batches"])
}

func TestHandleIntegrityCheck(t *testing.T) {
	app, mockClient, _ := setupTestApp(t)
	mockClient.On("BucketExists", mock.Anything, "test-bucket").Return(true, nil)
	mockClient.On("ListObjects", mock.Anything, "test-bucket", mock.Anything).Return(nil)

	status, body := decode(t, app, "/integrity")
	assert.Equal(t, 200, status)
	for _, key := range []string{"structure", "archive", "schema", "ledger"} {
		assert.Contains(t, body, key)
	}
}

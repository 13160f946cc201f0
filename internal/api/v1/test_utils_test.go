package v1

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/classifier"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/export"
	"github.com/tphakala/soilnet-go/internal/scan"
	"github.com/tphakala/soilnet-go/internal/stats"
)

// MockScanService implements ScanService for handler tests.
type MockScanService struct {
	mock.Mock
}

func (m *MockScanService) Scan(ctx context.Context, req scan.Request) (*scan.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*scan.Result)
	return res, args.Error(1)
}

func (m *MockScanService) History() ([]datastore.Record, error) {
	args := m.Called()
	return args.Get(0).([]datastore.Record), args.Error(1)
}

func (m *MockScanService) Get(id string) (datastore.Record, error) {
	args := m.Called(id)
	return args.Get(0).(datastore.Record), args.Error(1)
}

func (m *MockScanService) Statistics(now time.Time) (stats.Statistics, error) {
	args := m.Called(now)
	return args.Get(0).(stats.Statistics), args.Error(1)
}

func (m *MockScanService) AttachLocation(id string, loc datastore.Location) (datastore.Record, error) {
	args := m.Called(id, loc)
	return args.Get(0).(datastore.Record), args.Error(1)
}

func (m *MockScanService) MarkSynced(id, remoteURL string) (datastore.Record, error) {
	args := m.Called(id, remoteURL)
	return args.Get(0).(datastore.Record), args.Error(1)
}

func (m *MockScanService) Delete(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockScanService) ExportRows() ([]export.Row, error) {
	args := m.Called()
	return args.Get(0).([]export.Row), args.Error(1)
}

func (m *MockScanService) ModelState() classifier.State {
	args := m.Called()
	return args.Get(0).(classifier.State)
}

func (m *MockScanService) ModelInfo() (classifier.ModelInfo, bool) {
	args := m.Called()
	return args.Get(0).(classifier.ModelInfo), args.Bool(1)
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// setupTestEnvironment returns an echo instance with the v1 routes bound
// to a fresh mock service.
func setupTestEnvironment(t *testing.T) (*echo.Echo, *MockScanService) {
	t.Helper()

	e := echo.New()
	svc := new(MockScanService)
	New(e, svc,
		WithBuildInfo(buildinfo.NewContext("1.2.3", "2024-05-01")),
		WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() { svc.AssertExpectations(t) })
	return e, svc
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

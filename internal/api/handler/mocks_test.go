package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/partition"
	"github.com/cuongbtq/delayq/internal/storage"
)

type JobStoreMock struct {
	mock.Mock
}

func (m *JobStoreMock) Create(ctx context.Context, params domain.JobParams) (*domain.Job, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *JobStoreMock) GetByEventID(ctx context.Context, eventID string) (*domain.Job, error) {
	args := m.Called(eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *JobStoreMock) GetByEventIDAndTimestamp(ctx context.Context, eventID string, ts time.Time) (*domain.Job, error) {
	args := m.Called(eventID, ts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *JobStoreMock) Update(ctx context.Context, params domain.JobParams) (*domain.Job, error) {
	args := m.Called(params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *JobStoreMock) Cancel(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(eventID)
	return args.Bool(0), args.Error(1)
}

func (m *JobStoreMock) ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.Job, error) {
	args := m.Called(from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Job), args.Error(1)
}

func (m *JobStoreMock) ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	args := m.Called(filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Job), args.Error(1)
}

type PartitionManagerMock struct {
	mock.Mock
}

func (m *PartitionManagerMock) BaseTable() string { return "Jobs" }

func (m *PartitionManagerMock) EnsureDailyPartitions(ctx context.Context, fromDate time.Time, numberOfDays int) (*partition.Report, error) {
	args := m.Called(fromDate, numberOfDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partition.Report), args.Error(1)
}

func (m *PartitionManagerMock) EnsurePartitions(ctx context.Context, fromDate, toDate time.Time) (*partition.Report, error) {
	args := m.Called(fromDate, toDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partition.Report), args.Error(1)
}

func (m *PartitionManagerMock) List(ctx context.Context) ([]partition.Info, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]partition.Info), args.Error(1)
}

func (m *PartitionManagerMock) Drop(ctx context.Context, name string) (bool, error) {
	args := m.Called(name)
	return args.Bool(0), args.Error(1)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) PublishJSON(ctx context.Context, v any) error {
	args := m.Called(v)
	return args.Error(0)
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testDeps() *Dependencies {
	gin.SetMode(gin.TestMode)
	return &Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func serve(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

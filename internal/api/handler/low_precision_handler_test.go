package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/delayq/internal/api/dto"
	"github.com/cuongbtq/delayq/internal/domain"
	"github.com/cuongbtq/delayq/internal/lowprecision"
)

var lpNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newLowPrecisionEngine(t *testing.T) (*gin.Engine, *lowprecision.MemoryStore) {
	t.Helper()

	deps := testDeps()
	store := lowprecision.NewMemoryStore(4, deps.Logger,
		lowprecision.WithClock(func() time.Time { return lpNow }))
	deps.LowPrecision = store
	deps.Now = func() time.Time { return lpNow }
	h := NewLowPrecisionHandler(deps)

	r := gin.New()
	r.POST("/lp", h.CreateJob)
	r.GET("/lp/by-date/:date", h.ListByDate)
	r.GET("/lp/:event_id", h.GetJob)
	r.PUT("/lp/:event_id", h.UpdateJob)
	r.DELETE("/lp/:event_id", h.CancelJob)
	return r, store
}

const lpCreateBody = `{"event_id":"E1","callback_payload":{"k":"v"},"callback_type":"SQS",` +
	`"callback_url":"https://example.com/q","target_execution_time":"2025-03-10T23:30:00Z"}`

func TestLowPrecisionHandler_CreateAndListByDate(t *testing.T) {
	engine, _ := newLowPrecisionEngine(t)

	w := serve(engine, http.MethodPost, "/lp", lpCreateBody)
	require.Equal(t, http.StatusCreated, w.Code)

	var created dto.LowPrecisionJobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "2025-03-10", created.PartitionKey)
	assert.Equal(t, int64(1741649400), created.TTLExpiry)
	assert.Equal(t, "E1", created.SortKey)
	assert.Equal(t, "QUEUE", created.CallbackType)
	assert.Equal(t, "Pending", created.Status)

	w = serve(engine, http.MethodGet, "/lp/by-date/2025-03-10", "")
	require.Equal(t, http.StatusOK, w.Code)

	var listed dto.ListLowPrecisionJobsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Jobs, 1)
	assert.Equal(t, "E1", listed.Jobs[0].EventID)

	w = serve(engine, http.MethodGet, "/lp/by-date/2025-03-11", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Empty(t, listed.Jobs)
}

func TestLowPrecisionHandler_RejectsPastTarget(t *testing.T) {
	engine, store := newLowPrecisionEngine(t)

	past := `{"event_id":"E1","callback_type":"HTTP","callback_url":"https://example.com",` +
		`"target_execution_time":"2025-02-28T00:00:00Z"}`
	w := serve(engine, http.MethodPost, "/lp", past)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, store.Len())
}

func TestLowPrecisionHandler_BadDate(t *testing.T) {
	engine, _ := newLowPrecisionEngine(t)

	w := serve(engine, http.MethodGet, "/lp/by-date/10-03-2025", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLowPrecisionHandler_UpdateAndCancel(t *testing.T) {
	engine, store := newLowPrecisionEngine(t)
	require.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/lp", lpCreateBody).Code)

	complete := `{"callback_type":"HTTP","callback_url":"https://example.com/done",` +
		`"target_execution_time":"2025-03-11T01:00:00Z","status":"Completed"}`
	w := serve(engine, http.MethodPut, "/lp/E1", complete)
	require.Equal(t, http.StatusOK, w.Code)

	var updated dto.LowPrecisionJobDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "2025-03-11", updated.PartitionKey)
	assert.Equal(t, "Completed", updated.Status)
	assert.NotNil(t, updated.ExecutedAt)

	w = serve(engine, http.MethodDelete, "/lp/E1", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	job, err := store.Get(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)

	w = serve(engine, http.MethodPut, "/lp/E1", complete)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLowPrecisionHandler_Missing(t *testing.T) {
	engine, _ := newLowPrecisionEngine(t)

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/lp/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodDelete, "/lp/missing", "").Code)

	update := `{"callback_type":"HTTP","callback_url":"https://example.com",` +
		`"target_execution_time":"2025-03-11T01:00:00Z"}`
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodPut, "/lp/missing", update).Code)
}

func TestLowPrecisionHandler_CancelPending(t *testing.T) {
	engine, _ := newLowPrecisionEngine(t)
	require.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/lp", lpCreateBody).Code)

	w := serve(engine, http.MethodDelete, "/lp/E1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp dto.CancelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Cancelled", resp.Status)
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/registry-crawler/internal/progress"
	"github.com/JakeFAU/registry-crawler/internal/progress/sinks"
)

func seededStats(t *testing.T) *sinks.StatsSink {
	t.Helper()
	stats := sinks.NewStatsSink()
	require.NoError(t, stats.Consume(context.Background(), []progress.Event{
		{Stage: progress.StageCategoryStart, Category: "1"},
		{Stage: progress.StageRecordWritten, Category: "1"},
		{Stage: progress.StageCategoryDone, Category: "1"},
		{Stage: progress.StageCategoryStart, Category: "3"},
		{Stage: progress.StageImageSaved, Category: "3", Bytes: 42},
		{Stage: progress.StageCategoryStart, Category: "9"},
	}))
	return stats
}

type listBody struct {
	Categories []sinks.CategoryStats `json:"categories"`
	Total      int                   `json:"total"`
}

func TestProgressHandlerListCategories(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(seededStats(t), zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/categories?limit=10", nil)
	rec := httptest.NewRecorder()

	handler.ListCategories(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body listBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Total)
	require.Len(t, body.Categories, 3)
	require.Equal(t, "1", body.Categories[0].Category)
	require.EqualValues(t, 1, body.Categories[0].RecordsWritten)
}

func TestProgressHandlerListCategoriesRunningFilterAndPaging(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(seededStats(t), zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/categories?running=true&limit=1&offset=1", nil)
	rec := httptest.NewRecorder()

	handler.ListCategories(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body listBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Total)
	require.Len(t, body.Categories, 1)
	require.Equal(t, "9", body.Categories[0].Category)
}

func TestProgressHandlerListCategoriesOffsetPastEnd(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(seededStats(t), zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/categories?offset=10", nil)
	rec := httptest.NewRecorder()

	handler.ListCategories(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body listBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Total)
	require.Empty(t, body.Categories)
}

func TestProgressHandlerListCategoriesInvalidQuery(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(seededStats(t), zap.NewNop())
	for _, q := range []string{"limit=0", "offset=-1", "running=maybe"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/categories?"+q, nil)
		rec := httptest.NewRecorder()
		handler.ListCategories(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestProgressHandlerUnavailable(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(nil, nil)
	rec := httptest.NewRecorder()
	handler.ListCategories(rec, httptest.NewRequest(http.MethodGet, "/v1/categories", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProgressHandlerGetCategory(t *testing.T) {
	t.Parallel()

	handler := NewProgressHandler(seededStats(t), zap.NewNop())

	req := withCategoryParam(httptest.NewRequest(http.MethodGet, "/v1/categories/3", nil), "3")
	rec := httptest.NewRecorder()
	handler.GetCategory(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Category sinks.CategoryStats `json:"category"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Category.Running)
	require.EqualValues(t, 42, body.Category.ImageBytes)

	req = withCategoryParam(httptest.NewRequest(http.MethodGet, "/v1/categories/8", nil), "8")
	rec = httptest.NewRecorder()
	handler.GetCategory(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func withCategoryParam(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("category_id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

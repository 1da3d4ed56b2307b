package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	v1 "github.com/groanlab/groanboard/internal/api/v1"
	"github.com/groanlab/groanboard/internal/core/stats"
	"github.com/groanlab/groanboard/internal/core/storage"
	"github.com/groanlab/groanboard/internal/stream"
)

type fakeEventStore struct {
	appended []*v1.RatingEvent
	err      error
}

func (f *fakeEventStore) Append(ctx context.Context, event *v1.RatingEvent) error {
	if f.err != nil {
		return f.err
	}
	event.IngestSeq = int64(len(f.appended) + 1)
	f.appended = append(f.appended, event)
	return nil
}

func (f *fakeEventStore) ListAfterCursor(ctx context.Context, cursor int64, limit int) ([]*v1.RatingEvent, error) {
	return nil, nil
}

func (f *fakeEventStore) ListForItem(ctx context.Context, mode, itemID, dateKey string) ([]*v1.RatingEvent, error) {
	return nil, nil
}

func (f *fakeEventStore) ListRecent(ctx context.Context, limit int) ([]*v1.RatingEvent, error) {
	return nil, nil
}

type fakeRollupStore struct {
	applied int
	err     error
}

func (f *fakeRollupStore) Apply(ctx context.Context, scope storage.RollupScope, key string, update storage.RollupUpdate) (storage.RollupTotals, error) {
	if f.err != nil {
		return storage.RollupTotals{}, f.err
	}
	f.applied++
	return storage.RollupTotals{TotalRatings: 1, TotalScore: int64(update.Rating)}, nil
}

func (f *fakeRollupStore) GetRollup(ctx context.Context, scope storage.RollupScope, key string) (*stats.Rollup, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeRollupStore) ListAuthorRollups(ctx context.Context) ([]*stats.Rollup, error) {
	return nil, nil
}

func (f *fakeRollupStore) ListTopPerformers(ctx context.Context, limit int) ([]stats.Performer, error) {
	return nil, nil
}

func newTestService(store *fakeEventStore, rollups *fakeRollupStore) *Service {
	svc := NewService(store, stream.NewAggregator(rollups, stats.NewAuthorResolver()), 1)
	svc.nowFn = func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	svc.newID = func() string {
		return "test-event-id"
	}
	return svc
}

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantErrTyp string
	}{
		{
			name:       "valid live rating accepted",
			body:       `{"item_id":"fatherhood-1","rating":5,"mode":"live","author":"fatherhood.gov"}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "valid daily rating accepted",
			body:       `{"item_id":"daily","rating":4,"mode":"daily","date_key":"2026-03-14"}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "missing mode defaults to live",
			body:       `{"item_id":"custom-1","rating":3}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "missing item id rejected",
			body:       `{"rating":5,"mode":"live"}`,
			wantStatus: http.StatusBadRequest,
			wantErrTyp: "validation_error",
		},
		{
			name:       "rating below range rejected",
			body:       `{"item_id":"j1","rating":0,"mode":"live"}`,
			wantStatus: http.StatusBadRequest,
			wantErrTyp: "validation_error",
		},
		{
			name:       "rating above range rejected",
			body:       `{"item_id":"j1","rating":6,"mode":"live"}`,
			wantStatus: http.StatusBadRequest,
			wantErrTyp: "validation_error",
		},
		{
			name:       "non-integer rating rejected",
			body:       `{"item_id":"j1","rating":4.5,"mode":"live"}`,
			wantStatus: http.StatusBadRequest,
			wantErrTyp: "invalid_json",
		},
		{
			name:       "daily without date key rejected",
			body:       `{"item_id":"daily","rating":4,"mode":"daily"}`,
			wantStatus: http.StatusBadRequest,
			wantErrTyp: "validation_error",
		},
		{
			name:       "malformed json rejected",
			body:       `{"item_id":`,
			wantStatus: http.StatusBadRequest,
			wantErrTyp: "invalid_json",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeEventStore{}
			router := newTestRouter(newTestService(store, &fakeRollupStore{}))

			w := postJSON(router, "/v1/ratings", tc.body)
			require.Equal(t, tc.wantStatus, w.Code)

			if tc.wantErrTyp != "" {
				var resp map[string]interface{}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				require.Equal(t, tc.wantErrTyp, resp["error_type"])
				require.Empty(t, store.appended)
			}
		})
	}
}

func TestSubmitHandler_StampsServerFields(t *testing.T) {
	store := &fakeEventStore{}
	router := newTestRouter(newTestService(store, &fakeRollupStore{}))

	w := postJSON(router, "/v1/ratings",
		`{"item_id":"fatherhood-1","rating":5,"mode":"live","id":"client-forged","submitted_at":"2001-01-01T00:00:00Z"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Len(t, store.appended, 1)
	evt := store.appended[0]
	require.Equal(t, "test-event-id", evt.ID)
	require.Equal(t, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), evt.SubmittedAt)
}

func TestSubmitHandler_PersistFailure(t *testing.T) {
	store := &fakeEventStore{err: storage.ErrUnavailable}
	router := newTestRouter(newTestService(store, &fakeRollupStore{}))

	w := postJSON(router, "/v1/ratings", `{"item_id":"j1","rating":3,"mode":"live"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSubmitHandler_OversizedBodyRejected(t *testing.T) {
	router := newTestRouter(newTestService(&fakeEventStore{}, &fakeRollupStore{}))

	huge := `{"item_id":"j1","rating":3,"mode":"live","joke_text":"` +
		strings.Repeat("a", 2*1024*1024) + `"}`
	w := postJSON(router, "/v1/ratings", huge)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestChangefeedHandler(t *testing.T) {
	t.Run("batch report returned with 200", func(t *testing.T) {
		rollups := &fakeRollupStore{}
		router := newTestRouter(newTestService(&fakeEventStore{}, rollups))

		body := `{"records":[
			{"record_id":"r1","action":"insert","event":{"item_id":"j1","rating":5,"mode":"live","submitted_at":"2026-03-14T12:00:00Z"}},
			{"record_id":"r2","action":"remove"},
			{"record_id":"r3","action":"insert","event":{"item_id":"j1","rating":9,"mode":"live","submitted_at":"2026-03-14T12:00:00Z"}}
		]}`
		w := postJSON(router, "/v1/changefeed", body)
		require.Equal(t, http.StatusOK, w.Code)

		var report v1.BatchReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		require.Equal(t, 1, report.Processed)
		require.Equal(t, 2, report.Skipped)
		require.Empty(t, report.Errors)
		require.Equal(t, 3, rollups.applied, "one processed record touches three rollups")
	})

	t.Run("record failures still return 200", func(t *testing.T) {
		rollups := &fakeRollupStore{err: storage.ErrUnavailable}
		router := newTestRouter(newTestService(&fakeEventStore{}, rollups))

		body := `{"records":[
			{"record_id":"r1","action":"insert","event":{"item_id":"j1","rating":5,"mode":"live","submitted_at":"2026-03-14T12:00:00Z"}}
		]}`
		w := postJSON(router, "/v1/changefeed", body)
		require.Equal(t, http.StatusOK, w.Code)

		var report v1.BatchReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		require.Zero(t, report.Processed)
		require.Len(t, report.Errors, 1)
		require.Equal(t, "r1", report.Errors[0].RecordID)
	})

	t.Run("empty batch", func(t *testing.T) {
		router := newTestRouter(newTestService(&fakeEventStore{}, &fakeRollupStore{}))

		w := postJSON(router, "/v1/changefeed", `{"records":[]}`)
		require.Equal(t, http.StatusOK, w.Code)

		var report v1.BatchReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		require.Zero(t, report.Processed)
		require.Zero(t, report.Skipped)
	})

	t.Run("malformed json rejected", func(t *testing.T) {
		router := newTestRouter(newTestService(&fakeEventStore{}, &fakeRollupStore{}))
		w := postJSON(router, "/v1/changefeed", `{"records":`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

package ingestion

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/groanlab/groanboard/internal/api/v1"
	httperr "github.com/groanlab/groanboard/internal/core/errors"
	"github.com/groanlab/groanboard/internal/metrics"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgPersistFailed  = "Failed to persist rating"
)

// ingestionError carries the structured HTTP error shape from a helper back
// to the orchestrator. Helpers return this instead of writing to
// gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// submitRequest is the rating submission body. ID and SubmittedAt are
// always assigned server-side; clients cannot forge either.
type submitRequest struct {
	ItemID   string `json:"item_id"`
	Rating   int    `json:"rating"`
	Mode     string `json:"mode"`
	DateKey  string `json:"date_key"`
	JokeText string `json:"joke_text"`
	Author   string `json:"author"`
}

// changefeedRequest is the change-feed batch body.
type changefeedRequest struct {
	Records []v1.ChangeRecord `json:"records"`
}

// SubmitHandler handles POST /v1/ratings. A valid rating is appended to
// the durable log and acknowledged with 202; aggregation happens
// asynchronously via the change feed.
func (s *Service) SubmitHandler(c *gin.Context) {
	var req submitRequest
	if ierr := s.bindBody(c, &req); ierr != nil {
		writeError(c, ierr)
		return
	}

	evt := &v1.RatingEvent{
		ID:          s.newID(),
		ItemID:      req.ItemID,
		Rating:      req.Rating,
		Mode:        v1.NormalizedMode(req.Mode),
		DateKey:     req.DateKey,
		JokeText:    req.JokeText,
		Author:      req.Author,
		SubmittedAt: s.nowFn(),
	}

	if err := evt.Validate(); err != nil {
		slog.Warn("[Ingestion] Rating validation failed", "error", err, "item_id", req.ItemID)
		metrics.RecordRatingRejected()
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    err.Error(),
		})
		return
	}

	slog.Info("[Ingestion] Received rating",
		"event_id", evt.ID,
		"item_id", evt.ItemID,
		"rating", evt.Rating,
		"mode", evt.Mode)

	if ierr := s.persistEvent(c.Request.Context(), evt); ierr != nil {
		writeError(c, ierr)
		return
	}

	metrics.RecordRatingAccepted()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "id": evt.ID})
}

// ChangefeedHandler handles POST /v1/changefeed. The batch report is
// always returned with 200: per-record failures are data in the report,
// not a failure of the invocation.
func (s *Service) ChangefeedHandler(c *gin.Context) {
	var req changefeedRequest
	if ierr := s.bindBody(c, &req); ierr != nil {
		writeError(c, ierr)
		return
	}

	report := s.aggregator.ProcessBatch(c.Request.Context(), req.Records)
	metrics.RecordBatchOutcome(report.Processed, report.Skipped, len(report.Errors))
	c.JSON(http.StatusOK, report)
}

// bindBody reads the size-limited request body and binds it as JSON.
func (s *Service) bindBody(c *gin.Context, dst interface{}) *ingestionError {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	if err := c.ShouldBindJSON(dst); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	return nil
}

// persistEvent appends the event to the durable log.
func (s *Service) persistEvent(ctx context.Context, evt *v1.RatingEvent) *ingestionError {
	if err := s.store.Append(ctx, evt); err != nil {
		slog.Error("[Ingestion] Failed to persist rating", "error", err, "event_id", evt.ID)
		return &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgPersistFailed,
		}
	}
	return nil
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}

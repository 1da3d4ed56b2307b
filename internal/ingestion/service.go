package ingestion

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/groanlab/groanboard/internal/core/storage"
	"github.com/groanlab/groanboard/internal/stream"
)

type Service struct {
	store            storage.EventStore
	aggregator       *stream.Aggregator
	maxBodySizeBytes int
	nowFn            func() time.Time
	newID            func() string
}

func NewService(store storage.EventStore, aggregator *stream.Aggregator, maxBodySizeMB int) *Service {
	if store == nil {
		panic("ingestion: store must not be nil")
	}
	if aggregator == nil {
		panic("ingestion: aggregator must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		store:            store,
		aggregator:       aggregator,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
		newID: func() string {
			return uuid.NewString()
		},
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/ratings", s.SubmitHandler)
	r.POST("/v1/changefeed", s.ChangefeedHandler)
}

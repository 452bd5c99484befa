package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brickapparel/storefront-backend/api/responses"
	"github.com/brickapparel/storefront-backend/api/validators"
	"github.com/brickapparel/storefront-backend/pkg/db/models"
	pkgerrors "github.com/brickapparel/storefront-backend/pkg/errors"
	"github.com/brickapparel/storefront-backend/pkg/logger"
)

// DLQLister reads dead-lettered outbox events.
type DLQLister interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
}

type dlqEntryResponse struct {
	EventID       uuid.UUID       `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	ErrorReason   string          `json:"errorReason"`
	ErrorMessage  *string         `json:"errorMessage,omitempty"`
	AttemptCount  int             `json:"attemptCount"`
	FailedAt      time.Time       `json:"failedAt"`
	Payload       json.RawMessage `json:"payload"`
}

// AdminOutboxDLQ lists outbox events the publisher gave up on.
func AdminOutboxDLQ(repo DLQLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "outbox dlq unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := repo.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list outbox dlq"))
			return
		}
		out := make([]dlqEntryResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, dlqEntryResponse{
				EventID:       row.EventID,
				EventType:     string(row.EventType),
				AggregateType: string(row.AggregateType),
				AggregateID:   row.AggregateID,
				ErrorReason:   string(row.ErrorReason),
				ErrorMessage:  row.ErrorMessage,
				AttemptCount:  row.AttemptCount,
				FailedAt:      row.FailedAt,
				Payload:       row.Payload,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

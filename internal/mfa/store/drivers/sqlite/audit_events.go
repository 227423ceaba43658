package sqlite

import (
	"context"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store/drivers/sqlite/gen"
)

type auditEventsRepo struct {
	q *gen.Queries
}

func (r *auditEventsRepo) CreateAuditEvent(ctx context.Context, e domain.AuditEvent) error {
	err := r.q.CreateAuditEvent(ctx, gen.CreateAuditEventParams{
		ID:        e.ID,
		UserID:    e.UserID,
		Event:     e.Event,
		CreatedAt: e.CreatedAt.UTC(),
	})
	return mapForeignKeyViolation(err)
}

func (r *auditEventsRepo) ListUserAuditEvents(ctx context.Context, userID string) ([]domain.AuditEvent, error) {
	rows, err := r.q.ListUserAuditEvents(ctx, userID)
	if err != nil {
		return nil, err
	}

	events := make([]domain.AuditEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, mapAuditEvent(row))
	}
	return events, nil
}

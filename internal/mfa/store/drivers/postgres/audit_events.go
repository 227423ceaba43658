package postgres

import (
	"context"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/domain"
)

type auditEventsRepo struct {
	q querier
}

func (r *auditEventsRepo) CreateAuditEvent(ctx context.Context, e domain.AuditEvent) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO mfa_audit_events (id, user_id, event, created_at)
		VALUES ($1, $2, $3, $4)`,
		e.ID, e.UserID, e.Event, e.CreatedAt.UTC(),
	)
	return mapForeignKeyViolation(err)
}

func (r *auditEventsRepo) ListUserAuditEvents(ctx context.Context, userID string) ([]domain.AuditEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, user_id, event, created_at
		FROM mfa_audit_events
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Event, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

package repository

import (
	"context"

	"github.com/samber/oops"

	"go-auth-service/internal/model"
)

type AuditRepository struct {
	pool DBTX
}

func NewAuditRepository(pool DBTX) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_entries
		 (action, occurred_at, actor_user_id, actor_username, actor_ip, status, resource, error_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Action, entry.OccurredAt,
		entry.Actor.UserID, entry.Actor.Username, entry.Actor.IP,
		entry.Status, entry.Resource, entry.Error)
	if err != nil {
		return oops.Code("AUDIT_LOG_FAILED").With("action", entry.Action).Wrap(err)
	}
	return nil
}

package repositories

import (
	"context"

	"github.com/collateral-pay/backend/internal/models"
	"github.com/google/uuid"
)

type AuditRepo struct {
	db DBTX
}

func NewAuditRepo(db DBTX) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO channel_audit_log (actor, actor_type, action, channel_id, meta)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.Actor, entry.ActorType, entry.Action, entry.ChannelID, entry.Meta)
	return err
}

func (r *AuditRepo) GetByChannel(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, actor, actor_type, action, channel_id, meta, created_at
		FROM channel_audit_log WHERE channel_id = $1
		ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3
	`, channelID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.Actor, &l.ActorType, &l.Action, &l.ChannelID, &l.Meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

package storage

import (
	"context"

	"landsale/models"
)

// InsertActivity appends one activity row. Called inside the transaction of
// the event it records.
func (q *Queries) InsertActivity(ctx context.Context, entity, entityID, action, message string) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO activity_logs (entity, entity_id, action, message, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entity, entityID, action, message, now())
	return err
}

func (q *Queries) ListActivity(ctx context.Context, entity, entityID string) ([]models.ActivityLog, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, entity, entity_id, action, message, created_at
		FROM activity_logs
		WHERE entity = $1 AND entity_id = $2
		ORDER BY id`, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ActivityLog
	for rows.Next() {
		var l models.ActivityLog
		if err := rows.Scan(&l.ID, &l.Entity, &l.EntityID, &l.Action, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

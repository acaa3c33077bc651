package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cueapp/cue/store"
)

func (d *DB) CreateDecisionLog(ctx context.Context, create *store.DecisionLog) (*store.DecisionLog, error) {
	reasonCodes, err := marshalJSONStrings(create.ReasonCodes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reason codes: %w", err)
	}
	context, err := marshalJSONMap(create.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision context: %w", err)
	}

	stmt := `INSERT INTO decision_log (owner_id, intent, priority_score, reason_codes, context)
		VALUES (` + placeholders(5) + `)
		RETURNING id, created_ts`

	if err := d.db.QueryRowContext(ctx, stmt, create.OwnerID, create.Intent, create.PriorityScore, reasonCodes, context).Scan(
		&create.ID,
		&create.CreatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create decision log: %w", err)
	}

	return create, nil
}

func (d *DB) CreateNudge(ctx context.Context, create *store.Nudge) (*store.Nudge, error) {
	stmt := `INSERT INTO nudge (owner_id, task_id, kind, channel, message, scheduled_ts, status)
		VALUES (` + placeholders(7) + `)
		RETURNING id, created_ts`

	if err := d.db.QueryRowContext(ctx, stmt,
		create.OwnerID, create.TaskID, create.Kind, create.Channel, create.Message, create.ScheduledTs, create.Status,
	).Scan(
		&create.ID,
		&create.CreatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create nudge: %w", err)
	}

	return create, nil
}

func (d *DB) ListNudges(ctx context.Context, find *store.FindNudge) ([]*store.Nudge, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.OwnerID; v != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "status = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT id, owner_id, task_id, kind, channel, message, scheduled_ts, sent_ts, status, created_ts
		FROM nudge
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY scheduled_ts DESC, id DESC`

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query nudges: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Nudge, 0)
	for rows.Next() {
		var nudge store.Nudge
		var taskID, sentTs sql.NullInt64
		if err := rows.Scan(
			&nudge.ID,
			&nudge.OwnerID,
			&taskID,
			&nudge.Kind,
			&nudge.Channel,
			&nudge.Message,
			&nudge.ScheduledTs,
			&sentTs,
			&nudge.Status,
			&nudge.CreatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan nudge: %w", err)
		}
		if taskID.Valid {
			v := int32(taskID.Int64)
			nudge.TaskID = &v
		}
		if sentTs.Valid {
			nudge.SentTs = &sentTs.Int64
		}
		list = append(list, &nudge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate nudges: %w", err)
	}

	return list, nil
}

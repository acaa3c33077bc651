package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cueapp/cue/store"
)

func (d *DB) CreateTask(ctx context.Context, create *store.Task) (*store.Task, error) {
	metadata, err := marshalJSONMap(create.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task metadata: %w", err)
	}

	fields := []string{
		"owner_id", "title", "notes", "metadata", "metadata_html",
		"due_ts", "is_hard_deadline", "estimated_minutes", "urgency", "importance",
		"status", "follow_up_state", "snoozed_until_ts", "last_nudged_ts",
	}
	values := []any{
		create.OwnerID, create.Title, create.Notes, metadata, create.MetadataHTML,
		create.DueTs, create.IsHardDeadline, create.EstimatedMinutes, create.Urgency, create.Importance,
		create.Status, create.FollowUpState, create.SnoozedUntilTs, create.LastNudgedTs,
	}

	stmt := `INSERT INTO task (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(values)) + `)
		RETURNING id, created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt, values...).Scan(
		&create.ID,
		&create.CreatedTs,
		&create.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return create, nil
}

func (d *DB) ListTasks(ctx context.Context, find *store.FindTask) ([]*store.Task, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "task.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.OwnerID; v != nil {
		where, args = append(where, "task.owner_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "task.status = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.TitleContains; v != nil {
		where, args = append(where, "task.title ILIKE '%' || "+placeholder(len(args)+1)+" || '%'"), append(args, *v)
	}

	orderBy := "ORDER BY task.due_ts ASC NULLS LAST, task.urgency DESC, task.importance DESC, task.created_ts ASC"
	if find.OrderByUpdatedTsDesc {
		orderBy = "ORDER BY task.updated_ts DESC, task.id DESC"
	}

	query := `
		SELECT
			id, owner_id, title, notes, metadata, metadata_html,
			due_ts, is_hard_deadline, estimated_minutes, urgency, importance,
			status, follow_up_state, snoozed_until_ts, last_nudged_ts,
			created_ts, updated_ts
		FROM task
		WHERE ` + strings.Join(where, " AND ") + ` ` + orderBy

	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return list, nil
}

func scanTask(rows *sql.Rows) (*store.Task, error) {
	var task store.Task
	var metadata string
	var dueTs, snoozedUntilTs, lastNudgedTs sql.NullInt64

	if err := rows.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Notes,
		&metadata,
		&task.MetadataHTML,
		&dueTs,
		&task.IsHardDeadline,
		&task.EstimatedMinutes,
		&task.Urgency,
		&task.Importance,
		&task.Status,
		&task.FollowUpState,
		&snoozedUntilTs,
		&lastNudgedTs,
		&task.CreatedTs,
		&task.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	parsed, err := unmarshalJSONMap(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal task metadata: %w", err)
	}
	task.Metadata = parsed

	if dueTs.Valid {
		task.DueTs = &dueTs.Int64
	}
	if snoozedUntilTs.Valid {
		task.SnoozedUntilTs = &snoozedUntilTs.Int64
	}
	if lastNudgedTs.Valid {
		task.LastNudgedTs = &lastNudgedTs.Int64
	}

	return &task, nil
}

func (d *DB) UpdateTask(ctx context.Context, update *store.UpdateTask) (*store.Task, error) {
	set, args := []string{"updated_ts = EXTRACT(EPOCH FROM NOW())::BIGINT"}, []any{}

	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Notes; v != nil {
		set, args = append(set, "notes = "+placeholder(len(args)+1)), append(args, *v)
	}
	if update.Metadata != nil {
		metadata, err := marshalJSONMap(update.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal task metadata: %w", err)
		}
		set, args = append(set, "metadata = "+placeholder(len(args)+1)), append(args, metadata)
	}
	if v := update.MetadataHTML; v != nil {
		set, args = append(set, "metadata_html = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.DueTs; v != nil {
		set, args = append(set, "due_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Status; v != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.FollowUpState; v != nil {
		set, args = append(set, "follow_up_state = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.SnoozedUntilTs; v != nil {
		set, args = append(set, "snoozed_until_ts = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.LastNudgedTs; v != nil {
		set, args = append(set, "last_nudged_ts = "+placeholder(len(args)+1)), append(args, *v)
	}

	args = append(args, update.ID)

	stmt := `UPDATE task SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	id := update.ID
	list, err := d.ListTasks(ctx, &store.FindTask{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("task %d not found after update", id)
	}
	return list[0], nil
}

func (d *DB) CreateTaskActivity(ctx context.Context, create *store.TaskActivity) (*store.TaskActivity, error) {
	metadata, err := marshalJSONMap(create.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity metadata: %w", err)
	}

	stmt := `INSERT INTO task_activity (task_id, actor, action, metadata)
		VALUES (` + placeholders(4) + `)
		RETURNING id, created_ts`

	if err := d.db.QueryRowContext(ctx, stmt, create.TaskID, create.Actor, create.Action, metadata).Scan(
		&create.ID,
		&create.CreatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create task activity: %w", err)
	}

	return create, nil
}

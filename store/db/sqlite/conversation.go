package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cueapp/cue/store"
)

func (d *DB) CreateConversationSession(ctx context.Context, create *store.ConversationSession) (*store.ConversationSession, error) {
	stmt := `INSERT INTO conversation_session (uid, owner_id, title)
		VALUES (` + placeholders(3) + `)
		RETURNING id, created_ts, updated_ts`

	if err := d.db.QueryRowContext(ctx, stmt, create.UID, create.OwnerID, create.Title).Scan(
		&create.ID,
		&create.CreatedTs,
		&create.UpdatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create conversation session: %w", err)
	}

	return create, nil
}

func (d *DB) GetConversationSession(ctx context.Context, find *store.FindConversationSession) (*store.ConversationSession, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.OwnerID; v != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT id, uid, owner_id, title, created_ts, updated_ts
		FROM conversation_session
		WHERE ` + strings.Join(where, " AND ") + ` LIMIT 1`

	session := &store.ConversationSession{}
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&session.ID,
		&session.UID,
		&session.OwnerID,
		&session.Title,
		&session.CreatedTs,
		&session.UpdatedTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation session: %w", err)
	}

	return session, nil
}

func (d *DB) TouchConversationSession(ctx context.Context, id int32) error {
	stmt := `UPDATE conversation_session SET updated_ts = strftime('%s', 'now') WHERE id = ` + placeholder(1)
	if _, err := d.db.ExecContext(ctx, stmt, id); err != nil {
		return fmt.Errorf("failed to touch conversation session: %w", err)
	}
	return nil
}

func (d *DB) CreateConversationMessage(ctx context.Context, create *store.ConversationMessage) (*store.ConversationMessage, error) {
	payload, err := marshalJSONMap(create.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message payload: %w", err)
	}

	stmt := `INSERT INTO conversation_message (session_id, role, content, payload)
		VALUES (` + placeholders(4) + `)
		RETURNING id, created_ts`

	if err := d.db.QueryRowContext(ctx, stmt, create.SessionID, create.Role, create.Content, payload).Scan(
		&create.ID,
		&create.CreatedTs,
	); err != nil {
		return nil, fmt.Errorf("failed to create conversation message: %w", err)
	}

	return create, nil
}

func (d *DB) ListConversationMessages(ctx context.Context, find *store.FindConversationMessage) ([]*store.ConversationMessage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.SessionID; v != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT id, session_id, role, content, payload, created_ts
		FROM conversation_message
		WHERE ` + strings.Join(where, " AND ")

	// With a limit, take the most recent N and return them oldest-first.
	if find.Limit != nil {
		query = fmt.Sprintf(`SELECT * FROM (%s ORDER BY created_ts DESC, id DESC LIMIT %d) ORDER BY created_ts ASC, id ASC`, query, *find.Limit)
	} else {
		query += ` ORDER BY created_ts ASC, id ASC`
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation messages: %w", err)
	}
	defer rows.Close()

	list := make([]*store.ConversationMessage, 0)
	for rows.Next() {
		var message store.ConversationMessage
		var payload string
		if err := rows.Scan(
			&message.ID,
			&message.SessionID,
			&message.Role,
			&message.Content,
			&payload,
			&message.CreatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conversation message: %w", err)
		}

		parsed, err := unmarshalJSONMap(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal message payload: %w", err)
		}
		message.Payload = parsed

		list = append(list, &message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation messages: %w", err)
	}

	return list, nil
}

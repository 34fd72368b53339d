package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"notenest.app/internal/accounts"
	"notenest.app/internal/ids"
	"notenest.app/internal/notes"
	"notenest.app/internal/quota"
)

// Create inserts a note. For bounded limits the owner row is locked and the
// count re-checked in the same transaction, so concurrent creates cannot
// overshoot the limit.
func (s *Store) Create(ctx context.Context, ownerID, content string, limit quota.Limit) (notes.Note, error) {
	bound, bounded := limit.Max()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return notes.Note{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if bounded {
		var one int
		err := tx.QueryRowContext(ctx, `select 1 from users where id=$1 for update`, ownerID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return notes.Note{}, accounts.ErrNotFound
		}
		if err != nil {
			return notes.Note{}, fmt.Errorf("lock owner: %w", err)
		}
		var current int
		if err := tx.QueryRowContext(ctx, `select count(*) from notes where user_id=$1`, ownerID).Scan(&current); err != nil {
			return notes.Note{}, fmt.Errorf("count notes: %w", err)
		}
		if current >= bound {
			return notes.Note{}, &quota.LimitError{Limit: bound, Current: current}
		}
	}

	note := notes.Note{ID: ids.New(), OwnerID: ownerID, Content: content}
	if err := tx.QueryRowContext(ctx, `
		insert into notes(id, user_id, content)
		values ($1, $2, $3)
		returning created_at
	`, note.ID, ownerID, content).Scan(&note.CreatedAt); err != nil {
		return notes.Note{}, fmt.Errorf("insert note: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return notes.Note{}, err
	}
	return note, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]notes.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, content, created_at
		from notes
		where user_id=$1
		order by created_at desc
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []notes.Note{}
	for rows.Next() {
		var (
			n       notes.Note
			created time.Time
		)
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Content, &created); err != nil {
			return nil, err
		}
		n.CreatedAt = created
		res = append(res, n)
	}
	return res, rows.Err()
}

func (s *Store) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `delete from notes where id=$1 and user_id=$2`, id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) CountOwnedBy(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `select count(*) from notes where user_id=$1`, ownerID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

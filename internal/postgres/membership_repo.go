package postgres

import (
	"context"
	"time"

	"github.com/hackhub/presence-service/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type MembershipRepository struct {
	db *pgxpool.Pool
}

func NewMembershipRepository(db *pgxpool.Pool) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// Open starts a new attendance interval. Any stale open interval for the same
// (room, user) is closed first, in the same transaction, so the partial unique
// index never rejects the insert.
func (r *MembershipRepository) Open(ctx context.Context, m *domain.Membership) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE room_memberships SET left_at=$3
		WHERE room_id=$1 AND user_id=$2 AND left_at IS NULL
	`, m.RoomID, m.UserID, m.JoinedAt); err != nil {
		return err
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO room_memberships (room_id, user_id, joined_at, video_enabled, audio_enabled)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, m.RoomID, m.UserID, m.JoinedAt, m.VideoEnabled, m.AudioEnabled).Scan(&m.ID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Close ends the open interval, if any. Closing twice is a no-op.
func (r *MembershipRepository) Close(ctx context.Context, roomID, userID string, leftAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE room_memberships SET left_at=$3
		WHERE room_id=$1 AND user_id=$2 AND left_at IS NULL
	`, roomID, userID, leftAt)
	return err
}

// UpdateState sets the av flags on the open interval.
func (r *MembershipRepository) UpdateState(ctx context.Context, roomID, userID string, video, audio bool) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE room_memberships SET video_enabled=$3, audio_enabled=$4
		WHERE room_id=$1 AND user_id=$2 AND left_at IS NULL
	`, roomID, userID, video, audio)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotInRoom
	}
	return nil
}

// ListOpen returns open intervals for a room, oldest join first.
func (r *MembershipRepository) ListOpen(ctx context.Context, roomID string) ([]domain.Membership, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, room_id, user_id, joined_at, left_at, video_enabled, audio_enabled
		FROM room_memberships
		WHERE room_id=$1 AND left_at IS NULL
		ORDER BY joined_at ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.JoinedAt, &m.LeftAt,
			&m.VideoEnabled, &m.AudioEnabled); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

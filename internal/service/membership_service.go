package service

import (
	"context"
	"time"

	"github.com/hackhub/presence-service/internal/domain"
	"github.com/hackhub/presence-service/internal/postgres"
)

// MembershipService owns the persisted attendance intervals. The coordinator
// calls it asynchronously after the in-memory mutation; failures here are
// logged by the caller and never roll back live presence.
type MembershipService struct {
	repo *postgres.MembershipRepository
}

func NewMembershipService(repo *postgres.MembershipRepository) *MembershipService {
	return &MembershipService{repo: repo}
}

func (s *MembershipService) OpenInterval(ctx context.Context, roomID, userID string, joinedAt time.Time, video, audio bool) error {
	m := &domain.Membership{
		RoomID:       roomID,
		UserID:       userID,
		JoinedAt:     joinedAt,
		VideoEnabled: video,
		AudioEnabled: audio,
	}
	return s.repo.Open(ctx, m)
}

func (s *MembershipService) CloseInterval(ctx context.Context, roomID, userID string, leftAt time.Time) error {
	return s.repo.Close(ctx, roomID, userID, leftAt)
}

func (s *MembershipService) UpdateState(ctx context.Context, roomID, userID string, video, audio bool) error {
	return s.repo.UpdateState(ctx, roomID, userID, video, audio)
}

func (s *MembershipService) ListOpen(ctx context.Context, roomID string) ([]domain.Membership, error) {
	return s.repo.ListOpen(ctx, roomID)
}

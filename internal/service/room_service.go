package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackhub/presence-service/internal/domain"
	"github.com/hackhub/presence-service/internal/postgres"

	"golang.org/x/crypto/bcrypt"
)

type RoomService struct {
	roomRepo *postgres.RoomRepository

	defaultCapacity int64
}

func NewRoomService(roomRepo *postgres.RoomRepository, defaultCapacity int64) *RoomService {
	if defaultCapacity <= 0 {
		defaultCapacity = 50
	}
	return &RoomService{roomRepo: roomRepo, defaultCapacity: defaultCapacity}
}

type CreateRoomParams struct {
	Name     string
	Kind     domain.RoomKind
	Track    *string
	Capacity int64
	Secret   string // plaintext; hashed before storage
}

// CreateRoom creates a room; an empty capacity falls back to the configured default.
func (s *RoomService) CreateRoom(ctx context.Context, p CreateRoomParams) (*domain.Room, error) {
	if p.Name == "" {
		return nil, errors.New("room name is required")
	}
	if p.Kind == "" {
		p.Kind = domain.RoomKindGeneral
	}
	if p.Capacity <= 0 {
		p.Capacity = s.defaultCapacity
	}

	room := &domain.Room{
		Name:     p.Name,
		Kind:     p.Kind,
		Track:    p.Track,
		Capacity: p.Capacity,
	}

	if p.Secret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash secret: %w", err)
		}
		h := string(hash)
		room.SecretHash = &h
	}

	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("roomRepo.Create: %w", err)
	}
	return room, nil
}

// CreateBreakout spawns a child room inheriting the parent's track. The parent
// must exist and be active. Participants are not moved; they join separately.
func (s *RoomService) CreateBreakout(ctx context.Context, parentID, name string, capacity int64) (*domain.Room, error) {
	parent, err := s.roomRepo.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.IsActive {
		return nil, domain.ErrRoomInactive
	}
	if capacity <= 0 {
		capacity = s.defaultCapacity
	}

	room := &domain.Room{
		Name:         name,
		Kind:         domain.RoomKindBreakout,
		Track:        parent.Track,
		Capacity:     capacity,
		ParentRoomID: &parent.ID,
	}
	if err := s.roomRepo.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("roomRepo.Create breakout: %w", err)
	}
	return room, nil
}

// GetRoom returns a room by ID.
func (s *RoomService) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	return s.roomRepo.Get(ctx, id)
}

// Authorize checks the join preconditions that do not depend on live presence:
// the room must be active, and a protected room requires a matching secret.
func (s *RoomService) Authorize(ctx context.Context, roomID, secret string) (*domain.Room, error) {
	room, err := s.roomRepo.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, domain.ErrRoomInactive
	}
	if room.Protected() {
		if err := bcrypt.CompareHashAndPassword([]byte(*room.SecretHash), []byte(secret)); err != nil {
			return nil, domain.ErrForbidden
		}
	}
	return room, nil
}

// ListRooms returns active rooms with cursor pagination.
func (s *RoomService) ListRooms(ctx context.Context, limit int, cursor string) ([]domain.Room, string, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}
	return s.roomRepo.List(ctx, limit, cursor)
}

// DeactivateRoom soft-deletes a room. Live participants are not evicted here;
// their connections drain through the normal leave/disconnect path.
func (s *RoomService) DeactivateRoom(ctx context.Context, id string) error {
	return s.roomRepo.Deactivate(ctx, id)
}

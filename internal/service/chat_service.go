package service

import (
	"context"
	"strings"

	"github.com/hackhub/presence-service/internal/domain"
	"github.com/hackhub/presence-service/internal/postgres"
)

type ChatService struct {
	chatRepo *postgres.ChatRepository
}

func NewChatService(chatRepo *postgres.ChatRepository) *ChatService {
	return &ChatService{chatRepo: chatRepo}
}

// Append persists a message whose body was already validated by the caller.
func (s *ChatService) Append(ctx context.Context, m *domain.Message) error {
	m.Body = strings.TrimSpace(m.Body)
	if m.Body == "" || len(m.Body) > domain.MaxMessageLen {
		return domain.ErrBadMessage
	}
	if m.Kind == "" {
		m.Kind = domain.MessageKindText
	}
	return s.chatRepo.Append(ctx, m)
}

// Recent is the history window delivered to a joiner, oldest first.
func (s *ChatService) Recent(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	return s.chatRepo.Recent(ctx, roomID, limit)
}

func (s *ChatService) History(ctx context.Context, roomID, after string, limit int) ([]domain.Message, string, error) {
	return s.chatRepo.History(ctx, roomID, after, limit)
}

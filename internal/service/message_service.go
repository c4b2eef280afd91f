package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aaronBIOO/QuickChat/internal/delivery"
	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/logging"
	"github.com/aaronBIOO/QuickChat/internal/media"
	"github.com/aaronBIOO/QuickChat/internal/metrics"
	"github.com/aaronBIOO/QuickChat/internal/security"
)

// MaxTextLength caps a message body, in characters.
const MaxTextLength = 5000

// Dispatcher pushes a stored message to live connections.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *domain.Message) delivery.Report
}

type MessageService struct {
	messages   domain.MessageRepository
	users      domain.UserRepository
	encryptor  *security.Encryptor
	uploader   media.Uploader
	dispatcher Dispatcher
	now        func() time.Time
}

func NewMessageService(
	messages domain.MessageRepository,
	users domain.UserRepository,
	encryptor *security.Encryptor,
	uploader media.Uploader,
	dispatcher Dispatcher,
) *MessageService {
	return &MessageService{
		messages:   messages,
		users:      users,
		encryptor:  encryptor,
		uploader:   uploader,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type SendInput struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// Send stores a message from senderID to receiverID and then pushes it.
// The image, if any, is uploaded before anything is written. Push failures do
// not fail the send.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID string, in SendInput) (*domain.Message, error) {
	if in.Text == "" && in.Image == "" {
		return nil, fmt.Errorf("%w: message needs text or an image", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Text) > MaxTextLength {
		return nil, fmt.Errorf("%w: text exceeds %d characters", domain.ErrInvalidInput, MaxTextLength)
	}
	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		return nil, fmt.Errorf("receiver %s: %w", receiverID, err)
	}

	var imageURI string
	if in.Image != "" {
		uri, err := s.uploader.Upload(ctx, in.Image)
		if err != nil {
			return nil, fmt.Errorf("upload image: %w", err)
		}
		imageURI = uri
	}

	enc, err := s.encryptor.Encrypt(in.Text)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	stored := &domain.Message{
		ID:         id.String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       enc,
		Image:      imageURI,
		CreatedAt:  s.now(),
	}
	if err := s.messages.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	metrics.MessagesSent.WithLabelValues(metrics.MessageKind(in.Text != "", imageURI != "")).Inc()

	out := *stored
	out.Text = in.Text
	rep := s.dispatcher.Dispatch(ctx, &out)
	logging.Ctx(ctx).Debug().
		Str("message_id", out.ID).
		Int("receiver_pushes", rep.Receiver).
		Int("sender_pushes", rep.Sender).
		Int("failed_pushes", rep.Failed).
		Msg("message sent")
	return &out, nil
}

// Conversation returns the messages between me and peer, oldest first, and
// marks everything peer sent me as seen.
func (s *MessageService) Conversation(ctx context.Context, me, peer string) ([]*domain.Message, error) {
	if _, err := s.users.GetByID(ctx, peer); err != nil {
		return nil, fmt.Errorf("peer %s: %w", peer, err)
	}
	msgs, err := s.messages.ListBetween(ctx, me, peer)
	if err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkSeenFrom(ctx, peer, me); err != nil {
		return nil, err
	}
	for _, m := range msgs {
		m.Text = s.encryptor.DecryptOrRaw(m.Text)
		if m.SenderID == peer && m.ReceiverID == me {
			m.Seen = true
		}
	}
	return msgs, nil
}

// MarkSeen flags one message as seen. Only its receiver may do so; marking
// twice is fine.
func (s *MessageService) MarkSeen(ctx context.Context, me, messageID string) (*domain.Message, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", messageID, err)
	}
	if m.ReceiverID != me {
		return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrForbidden)
	}
	if !m.Seen {
		if err := s.messages.MarkSeen(ctx, messageID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		m.Seen = true
	}
	m.Text = s.encryptor.DecryptOrRaw(m.Text)
	return m, nil
}

// UnseenCounts maps sender id to messages me has not seen yet.
func (s *MessageService) UnseenCounts(ctx context.Context, me string) (map[string]int, error) {
	return s.messages.UnseenCounts(ctx, me)
}

// Package chatclient is the client side of a chat: the selected conversation,
// per-peer unseen counters and live updates from the push channel.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/goccy/go-json"

	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/logging"
)

// ErrNoPeerSelected is returned by Send when no conversation is open.
var ErrNoPeerSelected = errors.New("no peer selected")

// Peer is a sidebar entry.
type Peer struct {
	domain.User
	Online bool `json:"online"`
}

// API is the REST surface the session drives.
type API interface {
	ListPeers(ctx context.Context) ([]Peer, map[string]int, error)
	Conversation(ctx context.Context, peerID string) ([]*domain.Message, error)
	Send(ctx context.Context, peerID string, in SendRequest) (*domain.Message, error)
	MarkSeen(ctx context.Context, messageID string) error
}

// PushChannel delivers server events. On registers fn for one event type and
// returns a function that removes it.
type PushChannel interface {
	On(event string, fn func(data []byte)) (cancel func())
}

// SendRequest is the body of a send. At least one field must be set.
type SendRequest struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// Session holds what a chat window shows. It is safe for concurrent use:
// push handlers run on the channel's goroutine.
type Session struct {
	me   string
	api  API
	push PushChannel

	mu       sync.Mutex
	selected string
	messages []*domain.Message
	peers    []Peer
	unseen   map[string]int
	online   []string
	cancels  []func()
}

// NewSession builds a session for the user me.
func NewSession(me string, api API, push PushChannel) *Session {
	return &Session{
		me:     me,
		api:    api,
		push:   push,
		unseen: make(map[string]int),
	}
}

// Start subscribes to newMessage and getOnlineUsers. Calling it again before
// Close does nothing.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancels != nil {
		return
	}
	s.cancels = []func(){
		s.push.On(domain.EventNewMessage, func(data []byte) {
			var m domain.Message
			if err := json.Unmarshal(data, &m); err != nil {
				logging.Warn().Err(err).Msg("chatclient: bad newMessage frame")
				return
			}
			if err := s.HandlePush(ctx, &m); err != nil {
				logging.Warn().Err(err).Str("message_id", m.ID).Msg("chatclient: mark seen failed")
			}
		}),
		s.push.On(domain.EventGetOnlineUsers, func(data []byte) {
			var ids []string
			if err := json.Unmarshal(data, &ids); err != nil {
				logging.Warn().Err(err).Msg("chatclient: bad getOnlineUsers frame")
				return
			}
			s.setOnline(ids)
		}),
	}
}

// Close removes the push subscriptions. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// LoadPeers refreshes the peer list and replaces the unseen counters.
func (s *Session) LoadPeers(ctx context.Context) ([]Peer, error) {
	peers, unseen, err := s.api.ListPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	if unseen == nil {
		unseen = make(map[string]int)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = peers
	s.unseen = unseen
	return slices.Clone(peers), nil
}

// Select opens the conversation with peerID. The server marks the fetched
// messages seen, so the peer's counter drops to zero.
func (s *Session) Select(ctx context.Context, peerID string) error {
	msgs, err := s.api.Conversation(ctx, peerID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = peerID
	s.messages = msgs
	s.unseen[peerID] = 0
	return nil
}

// Deselect closes the open conversation.
func (s *Session) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ""
	s.messages = nil
}

// Send posts a message to the selected peer. The list only grows once the
// server has accepted the message.
func (s *Session) Send(ctx context.Context, text, image string) (*domain.Message, error) {
	s.mu.Lock()
	peer := s.selected
	s.mu.Unlock()
	if peer == "" {
		return nil, ErrNoPeerSelected
	}

	msg, err := s.api.Send(ctx, peer, SendRequest{Text: text, Image: image})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == peer {
		s.appendLocked(msg)
	}
	return msg, nil
}

// HandlePush applies a newMessage event. A message from the open peer is
// appended and marked seen; any other incoming message bumps its sender's
// counter. Copies of my own messages sent from another tab are appended to
// the matching conversation.
func (s *Session) HandlePush(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	switch {
	case s.selected != "" && msg.SenderID == s.selected:
		msg.Seen = true
		s.appendLocked(msg)
		s.mu.Unlock()
		return s.api.MarkSeen(ctx, msg.ID)
	case msg.SenderID == s.me:
		if s.selected == msg.ReceiverID {
			s.appendLocked(msg)
		}
	default:
		s.unseen[msg.SenderID]++
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) appendLocked(msg *domain.Message) {
	for _, m := range s.messages {
		if m.ID == msg.ID {
			return
		}
	}
	s.messages = append(s.messages, msg)
}

func (s *Session) setOnline(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = ids
	for i := range s.peers {
		s.peers[i].Online = slices.Contains(ids, s.peers[i].ID)
	}
}

// Selected is the open peer, or "".
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Messages returns a copy of the open conversation.
func (s *Session) Messages() []*domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Unseen is the unseen counter for one peer.
func (s *Session) Unseen(peerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unseen[peerID]
}

// Online returns the last online list pushed by the server.
func (s *Session) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.online)
}

// Peers returns the last loaded peer list with live online flags.
func (s *Session) Peers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.peers)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/aaronBIOO/QuickChat/internal/domain"
	"github.com/aaronBIOO/QuickChat/internal/identity"
	"github.com/aaronBIOO/QuickChat/internal/logging"
	"github.com/aaronBIOO/QuickChat/internal/media"
	"github.com/aaronBIOO/QuickChat/internal/validation"
)

// OnlineChecker reports live presence. presence.Registry satisfies it.
type OnlineChecker interface {
	IsOnline(userID string) bool
	Online() []string
}

// ClusterPresence lists users online on any server process.
// redis.PresenceMirror satisfies it.
type ClusterPresence interface {
	Members(ctx context.Context) ([]string, error)
}

// UserService is the user directory: local profiles keyed by external id.
type UserService struct {
	users    domain.UserRepository
	messages domain.MessageRepository
	presence OnlineChecker
	cluster  ClusterPresence
	uploader media.Uploader
	// lazy creates a profile on first authenticated contact when the
	// provider webhook has not delivered it yet.
	lazy bool
}

func NewUserService(
	users domain.UserRepository,
	messages domain.MessageRepository,
	presence OnlineChecker,
	uploader media.Uploader,
	lazy bool,
) *UserService {
	return &UserService{
		users:    users,
		messages: messages,
		presence: presence,
		uploader: uploader,
		lazy:     lazy,
	}
}

// WithCluster makes online flags cover every process sharing the cluster
// presence, not only connections held by this one.
func (s *UserService) WithCluster(c ClusterPresence) *UserService {
	s.cluster = c
	return s
}

// PeerView is a sidebar entry.
type PeerView struct {
	*domain.User
	Online bool `json:"online"`
}

// Resolve maps a verified identity to its profile.
func (s *UserService) Resolve(ctx context.Context, id identity.Identity) (*domain.User, error) {
	u, err := s.users.GetByID(ctx, id.UserID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if !s.lazy {
		return nil, fmt.Errorf("no profile for %s: %w", id.UserID, domain.ErrUnauthorized)
	}
	// a deleted identity may still hold an unexpired session token
	deleted, err := s.users.IsDeleted(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if deleted {
		return nil, fmt.Errorf("identity %s was deleted: %w", id.UserID, domain.ErrUnauthorized)
	}

	u = &domain.User{
		ID:         id.UserID,
		Email:      id.Email,
		FullName:   strings.TrimSpace(id.Name),
		ProfilePic: id.Picture,
		Bio:        identity.DefaultBio,
	}
	if u.Email == "" {
		u.Email = identity.PlaceholderEmail(id.UserID)
	}
	if u.FullName == "" {
		u.FullName = "User"
	}
	if err := s.users.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("create profile on first contact: %w", err)
	}
	logging.Ctx(ctx).Info().Str("user_id", u.ID).Msg("profile created on first contact")
	return s.users.GetByID(ctx, id.UserID)
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// Lookup returns one profile joined with its presence.
func (s *UserService) Lookup(ctx context.Context, id string) (PeerView, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return PeerView{}, fmt.Errorf("lookup user %s: %w", id, err)
	}
	return PeerView{User: u, Online: s.onlineFunc(ctx)(id)}, nil
}

// Online lists the ids of connected users, sorted. With a cluster presence
// the local registry is merged in, since the mirror may lag behind it. A
// failing cluster read falls back to local presence.
func (s *UserService) Online(ctx context.Context) []string {
	local := s.presence.Online()
	if s.cluster == nil {
		return local
	}
	remote, err := s.cluster.Members(ctx)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("cluster presence unavailable, using local")
		return local
	}
	ids := append(slices.Clone(local), remote...)
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (s *UserService) onlineFunc(ctx context.Context) func(string) bool {
	if s.cluster == nil {
		return s.presence.IsOnline
	}
	ids := s.Online(ctx)
	return func(id string) bool {
		_, found := slices.BinarySearch(ids, id)
		return found
	}
}

// ListPeers returns every user except me with online flags, plus my unseen
// counts keyed by sender.
func (s *UserService) ListPeers(ctx context.Context, me string) ([]PeerView, map[string]int, error) {
	users, err := s.users.ListExcept(ctx, me)
	if err != nil {
		return nil, nil, fmt.Errorf("list peers: %w", err)
	}
	counts, err := s.messages.UnseenCounts(ctx, me)
	if err != nil {
		return nil, nil, fmt.Errorf("unseen counts: %w", err)
	}

	isOnline := s.onlineFunc(ctx)
	peers := make([]PeerView, 0, len(users))
	unseen := make(map[string]int)
	for _, u := range users {
		peers = append(peers, PeerView{User: u, Online: isOnline(u.ID)})
		if n := counts[u.ID]; n > 0 {
			unseen[u.ID] = n
		}
	}
	return peers, unseen, nil
}

type ProfileInput struct {
	FullName   *string `json:"fullName" validate:"omitempty,max=100"`
	Bio        *string `json:"bio" validate:"omitempty,max=500"`
	ProfilePic *string `json:"profilePic"`
}

// UpdateProfile applies the non-nil fields. A new avatar is uploaded first;
// if that fails nothing is written.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*domain.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	upd := domain.ProfileUpdate{Bio: in.Bio}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: fullName cannot be empty", domain.ErrInvalidInput)
		}
		upd.FullName = &name
	}
	if in.ProfilePic != nil && *in.ProfilePic != "" {
		uri, err := s.uploader.Upload(ctx, *in.ProfilePic)
		if err != nil {
			return nil, fmt.Errorf("upload avatar: %w", err)
		}
		upd.ProfilePic = &uri
	}
	if upd.FullName == nil && upd.Bio == nil && upd.ProfilePic == nil {
		return s.users.GetByID(ctx, id)
	}
	return s.users.UpdateProfile(ctx, id, upd)
}

// SyncFromProvider applies a verified identity webhook. Unknown event types
// are ignored.
func (s *UserService) SyncFromProvider(ctx context.Context, ev *identity.WebhookEvent) error {
	log := logging.Ctx(ctx)
	switch ev.Type {
	case identity.EventUserCreated, identity.EventUserUpdated:
		if ev.Data.ID == "" {
			return fmt.Errorf("%w: webhook user without id", domain.ErrInvalidInput)
		}
		u := &domain.User{
			ID:         ev.Data.ID,
			Email:      ev.Data.Email(),
			FullName:   ev.Data.FullName(),
			ProfilePic: ev.Data.ImageURL,
			Bio:        identity.DefaultBio,
		}
		if err := s.users.Upsert(ctx, u); err != nil {
			return fmt.Errorf("sync user %s: %w", ev.Data.ID, err)
		}
		log.Info().Str("user_id", u.ID).Str("event", ev.Type).Msg("user synced from provider")
	case identity.EventUserDeleted:
		if err := s.Delete(ctx, ev.Data.ID); err != nil {
			return err
		}
		log.Info().Str("user_id", ev.Data.ID).Msg("user deleted by provider")
	default:
		log.Debug().Str("event", ev.Type).Msg("unhandled webhook event")
	}
	return nil
}

// Delete removes a profile. Deleting an unknown user succeeds.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.users.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return nil
}

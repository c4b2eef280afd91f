package domain

import (
	"context"
)

// UserRepository defines persistence operations for users.
// Lookups return ErrNotFound when no record matches.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListExcept(ctx context.Context, id string) ([]*User, error)
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (*User, error)
	// Upsert inserts u or refreshes email, name and avatar of an existing
	// record with the same id. Bio is only written on insert.
	Upsert(ctx context.Context, u *User) error
	// Delete removes the profile and leaves a tombstone so the id is never
	// recreated lazily. It returns ErrNotFound if no profile existed, after
	// still writing the tombstone.
	Delete(ctx context.Context, id string) error
	IsDeleted(ctx context.Context, id string) (bool, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListBetween returns the messages exchanged by a and b, oldest first.
	ListBetween(ctx context.Context, a, b string) ([]*Message, error)
	// MarkSeen sets the seen flag of one message. Marking an already seen
	// message succeeds.
	MarkSeen(ctx context.Context, id string) error
	// MarkSeenFrom flags every unseen message sender -> receiver and returns
	// how many changed.
	MarkSeenFrom(ctx context.Context, senderID, receiverID string) (int64, error)
	// UnseenCounts maps sender id to the number of unseen messages addressed
	// to receiverID. Senders with nothing unseen are absent.
	UnseenCounts(ctx context.Context, receiverID string) (map[string]int, error)
}

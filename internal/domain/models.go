package domain

import "time"

// User is the local profile record for one external identity.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"fullName"`
	Bio            string    `json:"bio"`
	ProfilePic     string    `json:"profilePic"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ProfileUpdate carries the optional fields of a profile change. Nil fields
// are left untouched.
type ProfileUpdate struct {
	FullName   *string
	Bio        *string
	ProfilePic *string
}

// Message is a single one-to-one chat message.
// Text is stored encrypted; the repositories never see plaintext.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Between reports whether the message was exchanged by a and b, in either direction.
func (m *Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

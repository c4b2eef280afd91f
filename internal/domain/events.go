package domain

// Push-channel event names.
const (
	EventNewMessage     = "newMessage"
	EventGetOnlineUsers = "getOnlineUsers"
)

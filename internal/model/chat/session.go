package chat

import "time"

// Session is one logical conversation. The ID is the opaque key supplied by
// the client in the connection URL, not something this process mints.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

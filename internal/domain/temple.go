package domain

import (
	"errors"
	"time"
)

var ErrTempleNotFound = errors.New("temple not found")

// Temple is the isolation scope for one congregation's counts and event log.
// Temples are created lazily the first time someone registers into them.
type Temple struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

package events

import "time"

// AuthCompletedEvent is emitted after a successful code exchange and identity fetch.
type AuthCompletedEvent struct {
	UserID   string
	Username string
	At       time.Time
}

// AuthFailedEvent is emitted when an authorization attempt fails for any reason.
type AuthFailedEvent struct {
	State   string
	Message string
	At      time.Time
}

// AuthRevokedEvent is emitted when a user's stored credentials are revoked.
type AuthRevokedEvent struct {
	UserID string
	At     time.Time
}

// ShareStartedEvent is emitted exactly once when a submit begins, before any
// network call.
type ShareStartedEvent struct {
	SubjectID string
	At        time.Time
}

// ShareCompletedEvent carries the canonical post URL of a successful share.
type ShareCompletedEvent struct {
	SubjectID string
	PostURL   string
	At        time.Time
}

// ShareFailedEvent carries the terminal error message of a failed share.
type ShareFailedEvent struct {
	SubjectID string
	Message   string
	At        time.Time
}

// Bus groups one topic per event kind. Construct one per service instance,
// there is no global bus.
type Bus struct {
	AuthCompleted  *Topic[AuthCompletedEvent]
	AuthFailed     *Topic[AuthFailedEvent]
	AuthRevoked    *Topic[AuthRevokedEvent]
	ShareStarted   *Topic[ShareStartedEvent]
	ShareCompleted *Topic[ShareCompletedEvent]
	ShareFailed    *Topic[ShareFailedEvent]
}

// NewBus creates a bus with all topics initialized.
func NewBus() *Bus {
	return &Bus{
		AuthCompleted:  NewTopic[AuthCompletedEvent]("auth_completed"),
		AuthFailed:     NewTopic[AuthFailedEvent]("auth_failed"),
		AuthRevoked:    NewTopic[AuthRevokedEvent]("auth_revoked"),
		ShareStarted:   NewTopic[ShareStartedEvent]("share_started"),
		ShareCompleted: NewTopic[ShareCompletedEvent]("share_completed"),
		ShareFailed:    NewTopic[ShareFailedEvent]("share_failed"),
	}
}

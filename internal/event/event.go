package event

type Type string

const (
	TypeLoginSucceeded  Type = "auth.login.succeeded"
	TypeLoginFailed     Type = "auth.login.failed"
	TypeAccountLocked   Type = "auth.account.locked"
	TypeLoggedOut       Type = "auth.logged_out"
	TypePasswordChanged Type = "auth.password.changed"
	TypeResetRequested  Type = "auth.password.reset_requested"
	TypePasswordReset   Type = "auth.password.reset"
	TypeUserRegistered  Type = "user.registered"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
	// UserID is the user the event is about. Only that user's connections
	// receive it.
	UserID string `json:"user_id,omitempty"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

package model

import "context"

const (
	AuditActionLogin          = "auth.login"
	AuditActionRefresh        = "auth.refresh"
	AuditActionLogout         = "auth.logout"
	AuditActionPasswordChange = "auth.password_change"
	AuditActionResetRequest   = "auth.password_reset_request"
	AuditActionPasswordReset  = "auth.password_reset"
	AuditActionRegister       = "user.register"

	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
	AuditStatusBlocked = "blocked"
)

type AuditActor struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	IP     string `json:"ip,omitempty"`
}

type AuditEntry struct {
	Action     string     `json:"action"`
	OccurredAt string     `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	Subject    string     `json:"subject,omitempty"`
	Details    any        `json:"details,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type AuditQuery struct {
	Action  string
	ActorID string
	Status  string
	Subject string
	From    string
	To      string
	Page    int
	Limit   int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}

type auditActorKey struct{}

// ContextWithActor attaches who is making the request so services can audit
// without taking the actor as a parameter.
func ContextWithActor(ctx context.Context, actor AuditActor) context.Context {
	return context.WithValue(ctx, auditActorKey{}, actor)
}

func ActorFromContext(ctx context.Context) AuditActor {
	actor, _ := ctx.Value(auditActorKey{}).(AuditActor)
	return actor
}

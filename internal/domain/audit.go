package domain

import "time"

// Scope names an administrative capability. Checks match on the exact
// scope; there is no wildcard scope and no role shortcut.
type Scope string

const (
	ScopeRefundIssue      Scope = "refund:issue"
	ScopeCommissionAdjust Scope = "commission:adjust"
	ScopeFraudOverride    Scope = "fraud:override"
)

// Resource is the concrete thing an administrative action touches. A
// grant's constraint is matched structurally against these fields, never
// against a role name.
type Resource struct {
	OrderID  OrderID
	VendorID VendorID
}

// PermissionGrant is a capability consumed from the auth collaborator:
// one actor, one scope, one resource constraint, with an expiry.
// Constraint is "*", "order:<id>" or "vendor:<id>".
type PermissionGrant struct {
	ActorID    string
	Scope      Scope
	Constraint string
	GrantedBy  string
	GrantedAt  time.Time
	ExpiresAt  time.Time
}

// Actor is an authenticated principal with its resolved grants. The role
// is informational only; authorization decisions ignore it.
type Actor struct {
	ID     string
	Role   string
	Grants []PermissionGrant
}

// AuditLogEntry is the write-once record of an administrative override.
// It is persisted in the same transaction as the mutation it describes,
// before that mutation commits.
type AuditLogEntry struct {
	ID             string
	ActorID        string
	Action         string
	Scope          Scope
	ResourceRef    string
	BeforeSnapshot []byte
	AfterSnapshot  []byte
	Reason         string
	CreatedAt      time.Time
}

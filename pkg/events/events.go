package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Channel is the Redis pub/sub channel the domain service publishes
// role-change events on
const Channel = "warden.role-events"

// Kind identifies a domain event type
type Kind string

const (
	KindUserRoleAssigned Kind = "USER_ROLE_ASSIGNED"
	KindUserRoleRemoved  Kind = "USER_ROLE_REMOVED"
	KindRoleModified     Kind = "ROLE_MODIFIED"
	KindRoleDeleted      Kind = "ROLE_DELETED"
)

// Kinds returns all known event kinds
func Kinds() []Kind {
	return []Kind{KindUserRoleAssigned, KindUserRoleRemoved, KindRoleModified, KindRoleDeleted}
}

// RemovalReason distinguishes why an assignment ended
type RemovalReason string

const (
	ReasonManual          RemovalReason = "MANUAL"
	ReasonExpired         RemovalReason = "EXPIRED"
	ReasonMembershipEnded RemovalReason = "MEMBERSHIP_ENDED"
)

// Envelope is the wire form of a domain event. ID doubles as the correlation
// ID threaded through logs and the audit trail.
type Envelope struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// UserRoleAssigned is published when a user gains a role
type UserRoleAssigned struct {
	UserID         int64      `json:"user_id"`
	RoleID         int64      `json:"role_id"`
	OrganizationID int64      `json:"organization_id"`
	AssignedBy     int64      `json:"assigned_by"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// UserRoleRemoved is published when a user loses a role, whether by explicit
// removal or expiry
type UserRoleRemoved struct {
	UserID         int64         `json:"user_id"`
	RoleID         int64         `json:"role_id"`
	OrganizationID int64         `json:"organization_id"`
	Reason         RemovalReason `json:"reason"`
}

// RoleModified is published when a custom role's permission bundle changes.
// Previous and New carry permission keys; the diff is derived, not trusted
// from the publisher.
type RoleModified struct {
	RoleID              int64    `json:"role_id"`
	OrganizationID      int64    `json:"organization_id"`
	PreviousPermissions []string `json:"previous_permissions"`
	NewPermissions      []string `json:"new_permissions"`
}

// Added returns the permission keys present in New but not Previous
func (e RoleModified) Added() []string {
	return diff(e.NewPermissions, e.PreviousPermissions)
}

// Removed returns the permission keys present in Previous but not New
func (e RoleModified) Removed() []string {
	return diff(e.PreviousPermissions, e.NewPermissions)
}

// Changed returns every permission key involved in the modification,
// regardless of direction
func (e RoleModified) Changed() []string {
	return append(e.Added(), e.Removed()...)
}

func diff(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, k := range b {
		inB[k] = struct{}{}
	}
	var out []string
	for _, k := range a {
		if _, ok := inB[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// RoleDeleted is published when a role is deleted outright
type RoleDeleted struct {
	RoleID         int64 `json:"role_id"`
	OrganizationID int64 `json:"organization_id"`
}

// ParseEnvelope decodes and validates an event envelope. Anything that fails
// here is a malformed event and gets dropped by the consumer.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed event: %w", err)
	}
	if env.ID == "" {
		return Envelope{}, fmt.Errorf("malformed event: missing id")
	}
	if len(env.Payload) == 0 {
		return Envelope{}, fmt.Errorf("malformed event %s: missing payload", env.ID)
	}

	known := false
	for _, k := range Kinds() {
		if env.Kind == k {
			known = true
			break
		}
	}
	if !known {
		return Envelope{}, fmt.Errorf("malformed event %s: unknown kind %q", env.ID, env.Kind)
	}
	return env, nil
}

// DecodeUserRoleAssigned decodes the payload of a USER_ROLE_ASSIGNED event
func (e Envelope) DecodeUserRoleAssigned() (UserRoleAssigned, error) {
	var p UserRoleAssigned
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return UserRoleAssigned{}, fmt.Errorf("malformed %s payload: %w", e.Kind, err)
	}
	if p.UserID == 0 || p.RoleID == 0 || p.OrganizationID == 0 {
		return UserRoleAssigned{}, fmt.Errorf("malformed %s payload: missing ids", e.Kind)
	}
	return p, nil
}

// DecodeUserRoleRemoved decodes the payload of a USER_ROLE_REMOVED event
func (e Envelope) DecodeUserRoleRemoved() (UserRoleRemoved, error) {
	var p UserRoleRemoved
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return UserRoleRemoved{}, fmt.Errorf("malformed %s payload: %w", e.Kind, err)
	}
	if p.UserID == 0 || p.RoleID == 0 || p.OrganizationID == 0 {
		return UserRoleRemoved{}, fmt.Errorf("malformed %s payload: missing ids", e.Kind)
	}
	if p.Reason == "" {
		p.Reason = ReasonManual
	}
	return p, nil
}

// DecodeRoleModified decodes the payload of a ROLE_MODIFIED event
func (e Envelope) DecodeRoleModified() (RoleModified, error) {
	var p RoleModified
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return RoleModified{}, fmt.Errorf("malformed %s payload: %w", e.Kind, err)
	}
	if p.RoleID == 0 || p.OrganizationID == 0 {
		return RoleModified{}, fmt.Errorf("malformed %s payload: missing ids", e.Kind)
	}
	return p, nil
}

// DecodeRoleDeleted decodes the payload of a ROLE_DELETED event
func (e Envelope) DecodeRoleDeleted() (RoleDeleted, error) {
	var p RoleDeleted
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return RoleDeleted{}, fmt.Errorf("malformed %s payload: %w", e.Kind, err)
	}
	if p.RoleID == 0 || p.OrganizationID == 0 {
		return RoleDeleted{}, fmt.Errorf("malformed %s payload: missing ids", e.Kind)
	}
	return p, nil
}

// NewEnvelope wraps a payload struct into an envelope. The expiry sweep uses
// this to emit synthetic removal events.
func NewEnvelope(id string, kind Kind, occurredAt time.Time, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return Envelope{
		ID:         id,
		Kind:       kind,
		OccurredAt: occurredAt,
		Payload:    data,
	}, nil
}

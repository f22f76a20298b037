// Package tenancy models organizations, their memberships and invites.
package tenancy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sobshdev/altenia/internal/domain/identity"
)

// OrgID uniquely identifies an organization.
type OrgID string

// NewOrgID generates a fresh OrgID.
func NewOrgID() OrgID { return OrgID(uuid.New().String()) }

// InviteID uniquely identifies a pending invite.
type InviteID string

// NewInviteID generates a fresh InviteID.
func NewInviteID() InviteID { return InviteID(uuid.New().String()) }

// Role is an org membership role. Roles form a strict hierarchy:
// Owner > Admin > Member.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Outranks reports whether r can perform actions reserved for at-least min.
func (r Role) Outranks(min Role) bool {
	rank := map[Role]int{RoleMember: 1, RoleAdmin: 2, RoleOwner: 3}
	return rank[r] >= rank[min]
}

// Organization is a tenancy root. A personal organization is created
// automatically alongside its owner's account and cannot be left or deleted
// while it remains the owner's only organization.
type Organization struct {
	ID         OrgID
	Name       string
	Slug       string
	IsPersonal bool
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Member is a user's membership within an organization. LastAccessedAt
// tracks when the user last switched into this org, used to pick the org
// context at login (most-recently accessed, falling back to personal).
type Member struct {
	OrgID          OrgID
	UserID         identity.UserID
	Role           Role
	JoinedAt       time.Time
	LastAccessedAt time.Time
}

// InviteStatus tracks the lifecycle of a pending invite.
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteExpired  InviteStatus = "expired"
	InviteDeclined InviteStatus = "declined"
)

// Invite is a pending membership offer sent to an email address.
type Invite struct {
	ID        InviteID
	OrgID     OrgID
	Email     string
	Role      Role
	Status    InviteStatus
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Pending reports whether the invite can still be accepted.
func (i *Invite) Pending(now time.Time) bool {
	return i.Status == InvitePending && now.Before(i.ExpiresAt)
}

// ActivityEntry records an auditable tenancy action (membership changes,
// role changes, ownership transfer, invite lifecycle).
type ActivityEntry struct {
	ID        string
	OrgID     OrgID
	ActorID   identity.UserID
	Action    string
	Target    string
	CreatedAt time.Time
}

// Repository persists organizations, memberships, invites, and activity.
type Repository interface {
	CreateOrg(ctx context.Context, org *Organization) error
	GetOrg(ctx context.Context, id OrgID) (*Organization, error)
	GetOrgBySlug(ctx context.Context, slug string) (*Organization, error)
	UpdateOrg(ctx context.Context, org *Organization) error
	SlugTaken(ctx context.Context, slug string) (bool, error)

	AddMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, orgID OrgID, userID identity.UserID) (*Member, error)
	UpdateMemberRole(ctx context.Context, orgID OrgID, userID identity.UserID, role Role) error
	RemoveMember(ctx context.Context, orgID OrgID, userID identity.UserID) error
	ListMembers(ctx context.Context, orgID OrgID) ([]*Member, error)
	CountOwners(ctx context.Context, orgID OrgID) (int, error)
	ListOrgsForUser(ctx context.Context, userID identity.UserID) ([]*Organization, error)
	UpdateLastAccessed(ctx context.Context, orgID OrgID, userID identity.UserID, at time.Time) error
	SelectOrgContext(ctx context.Context, userID identity.UserID) (*Organization, *Member, error)

	// WithinTx runs fn inside a single database transaction, giving the
	// caller's CountOwners/UpdateMemberRole/RemoveMember calls (threaded
	// through the ctx fn receives) a consistent, row-locked view so a
	// concurrent demote/remove can't race the last-owner check. fn's
	// returned error rolls the transaction back.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateInvite(ctx context.Context, inv *Invite) error
	GetInviteByToken(ctx context.Context, token string) (*Invite, error)
	ListPendingInvites(ctx context.Context, orgID OrgID) ([]*Invite, error)
	UpdateInviteStatus(ctx context.Context, id InviteID, status InviteStatus) error
	ExpirePendingInvites(ctx context.Context, now time.Time) (int, error)

	RecordActivity(ctx context.Context, entry *ActivityEntry) error
	ListActivity(ctx context.Context, orgID OrgID, limit int) ([]*ActivityEntry, error)
}

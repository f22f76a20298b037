// Package tenancy implements the Tenancy component: organizations,
// memberships, role changes, invites, and the activity log.
package tenancy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
)

const inviteTTL = 7 * 24 * time.Hour

var (
	slugDisallowed = regexp.MustCompile(`[^a-z0-9-]+`)
	slugRunsOfDash = regexp.MustCompile(`-+`)
)

const slugSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Service implements organization CRUD, membership, invites, and activity
// logging. Kept as one cohesive service rather than split across
// sub-services, matching how the source system structures it.
type Service struct {
	repo   tenancy.Repository
	logger *logging.Logger
}

// NewService constructs the tenancy service.
func NewService(repo tenancy.Repository, logger *logging.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateOrg creates a new, non-personal organization with ownerID as its
// first, sole owner, deriving a unique slug from name.
func (s *Service) CreateOrg(ctx context.Context, name string, ownerID identity.UserID) (*tenancy.Organization, error) {
	return s.createOrg(ctx, name, ownerID, false)
}

// CreatePersonalOrg creates the single personal organization that every user
// is granted at registration. Personal organizations can never be left or
// soft-deleted while they remain the user's only organization.
func (s *Service) CreatePersonalOrg(ctx context.Context, name string, ownerID identity.UserID) (*tenancy.Organization, error) {
	return s.createOrg(ctx, name, ownerID, true)
}

func (s *Service) createOrg(ctx context.Context, name string, ownerID identity.UserID, personal bool) (*tenancy.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, serrors.InvalidInput("name", "must not be empty")
	}

	slug, err := s.uniqueSlug(ctx, name)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	org := &tenancy.Organization{
		ID:         tenancy.NewOrgID(),
		Name:       name,
		Slug:       slug,
		IsPersonal: personal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateOrg(ctx, org); err != nil {
		return nil, err
	}

	member := &tenancy.Member{OrgID: org.ID, UserID: ownerID, Role: tenancy.RoleOwner, JoinedAt: now, LastAccessedAt: now}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return nil, err
	}
	s.record(ctx, org.ID, ownerID, "org.created", string(org.ID))
	return org, nil
}

// uniqueSlug lowercases name, replaces non-alphanumerics with hyphens,
// collapses runs, strips leading/trailing hyphens, and appends a random
// 4-char lowercase-alphanumeric suffix. On the rare collision it rerolls the
// suffix and retries, rather than falling back to a predictable counter.
func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := strings.ToLower(name)
	base = slugDisallowed.ReplaceAllString(base, "-")
	base = slugRunsOfDash.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "org"
	}
	for {
		suffix, err := randomSlugSuffix()
		if err != nil {
			return "", serrors.Internal("failed to generate slug suffix", err)
		}
		slug := base + "-" + suffix
		taken, err := s.repo.SlugTaken(ctx, slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
	}
}

func randomSlugSuffix() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 4)
	for i, b := range buf {
		out[i] = slugSuffixAlphabet[int(b)%len(slugSuffixAlphabet)]
	}
	return string(out), nil
}

// requireRole fetches the caller's membership and checks it outranks min.
func (s *Service) requireRole(ctx context.Context, orgID tenancy.OrgID, userID identity.UserID, min tenancy.Role) (*tenancy.Member, error) {
	member, err := s.repo.GetMember(ctx, orgID, userID)
	if err != nil {
		return nil, serrors.Forbidden("not a member of this organization")
	}
	if !member.Role.Outranks(min) {
		return nil, serrors.Forbidden("insufficient role")
	}
	return member, nil
}

// InviteMember creates a pending invite. Requires admin or owner.
func (s *Service) InviteMember(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID, email string, role tenancy.Role) (*tenancy.Invite, error) {
	if _, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleAdmin); err != nil {
		return nil, err
	}
	token, err := randomToken()
	if err != nil {
		return nil, serrors.Internal("failed to generate invite token", err)
	}
	now := time.Now()
	inv := &tenancy.Invite{
		ID:        tenancy.NewInviteID(),
		OrgID:     orgID,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Role:      role,
		Status:    tenancy.InvitePending,
		Token:     token,
		ExpiresAt: now.Add(inviteTTL),
		CreatedAt: now,
	}
	if err := s.repo.CreateInvite(ctx, inv); err != nil {
		return nil, err
	}
	s.record(ctx, orgID, actorID, "invite.created", inv.Email)
	return inv, nil
}

// AcceptInvite redeems a pending invite token for userID.
func (s *Service) AcceptInvite(ctx context.Context, token string, userID identity.UserID) (*tenancy.Organization, error) {
	inv, err := s.repo.GetInviteByToken(ctx, token)
	if err != nil {
		return nil, serrors.NotFound("invite", token)
	}
	if !inv.Pending(time.Now()) {
		return nil, serrors.Conflict("invite is no longer valid")
	}
	if err := s.repo.AddMember(ctx, &tenancy.Member{OrgID: inv.OrgID, UserID: userID, Role: inv.Role, JoinedAt: time.Now()}); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateInviteStatus(ctx, inv.ID, tenancy.InviteAccepted); err != nil {
		return nil, err
	}
	s.record(ctx, inv.OrgID, userID, "invite.accepted", inv.Email)
	return s.repo.GetOrg(ctx, inv.OrgID)
}

// RevokeInvite cancels a pending invite. Requires admin or owner.
func (s *Service) RevokeInvite(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID, inviteID tenancy.InviteID) error {
	if _, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.UpdateInviteStatus(ctx, inviteID, tenancy.InviteDeclined); err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "invite.revoked", string(inviteID))
	return nil
}

// ListInvites lists an organization's pending invites. Requires admin or
// owner.
func (s *Service) ListInvites(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID) ([]*tenancy.Invite, error) {
	if _, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListPendingInvites(ctx, orgID)
}

// ExpireStaleInvites sweeps pending invites past their expiry. Invoked by
// the periodic invite-expiry cron entry.
func (s *Service) ExpireStaleInvites(ctx context.Context) (int, error) {
	return s.repo.ExpirePendingInvites(ctx, time.Now())
}

// ChangeRole updates a member's role. Requires admin or owner, and never
// allows demoting the organization's last remaining owner.
func (s *Service) ChangeRole(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID, targetUserID identity.UserID, newRole tenancy.Role) error {
	if _, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleAdmin); err != nil {
		return err
	}
	target, err := s.repo.GetMember(ctx, orgID, targetUserID)
	if err != nil {
		return serrors.NotFound("member", string(targetUserID))
	}
	if target.Role == tenancy.RoleOwner && newRole != tenancy.RoleOwner {
		err := s.repo.WithinTx(ctx, func(txCtx context.Context) error {
			owners, err := s.repo.CountOwners(txCtx, orgID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return serrors.Conflict("cannot demote the last owner")
			}
			return s.repo.UpdateMemberRole(txCtx, orgID, targetUserID, newRole)
		})
		if err != nil {
			return err
		}
	} else if err := s.repo.UpdateMemberRole(ctx, orgID, targetUserID, newRole); err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "member.role_changed", string(targetUserID))
	return nil
}

// RemoveMember removes a member from an organization, refusing to remove the
// organization's last owner.
func (s *Service) RemoveMember(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID, targetUserID identity.UserID) error {
	if _, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleAdmin); err != nil {
		return err
	}
	target, err := s.repo.GetMember(ctx, orgID, targetUserID)
	if err != nil {
		return serrors.NotFound("member", string(targetUserID))
	}
	if target.Role == tenancy.RoleOwner {
		err := s.repo.WithinTx(ctx, func(txCtx context.Context) error {
			owners, err := s.repo.CountOwners(txCtx, orgID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return serrors.Conflict("cannot remove the last owner")
			}
			return s.repo.RemoveMember(txCtx, orgID, targetUserID)
		})
		if err != nil {
			return err
		}
	} else if err := s.repo.RemoveMember(ctx, orgID, targetUserID); err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "member.removed", string(targetUserID))
	return nil
}

// TransferOwnership promotes targetUserID to owner and demotes the acting
// owner to admin, leaving the organization with its owner count unchanged.
func (s *Service) TransferOwnership(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID, targetUserID identity.UserID) error {
	actor, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleOwner)
	if err != nil {
		return err
	}
	if _, err := s.repo.GetMember(ctx, orgID, targetUserID); err != nil {
		return serrors.NotFound("member", string(targetUserID))
	}
	if err := s.repo.UpdateMemberRole(ctx, orgID, targetUserID, tenancy.RoleOwner); err != nil {
		return err
	}
	if err := s.repo.UpdateMemberRole(ctx, orgID, actorID, tenancy.RoleAdmin); err != nil {
		return err
	}
	_ = actor
	s.record(ctx, orgID, actorID, "org.ownership_transferred", string(targetUserID))
	return nil
}

// ListMyOrgs lists organizations the given user belongs to, for the org
// switcher.
func (s *Service) ListMyOrgs(ctx context.Context, userID identity.UserID) ([]*tenancy.Organization, error) {
	return s.repo.ListOrgsForUser(ctx, userID)
}

// SwitchOrg verifies userID belongs to orgID, stamps it as their
// most-recently-accessed organization, and returns the org and the
// caller's role in it so the HTTP layer can re-issue tokens reflecting the
// new context.
func (s *Service) SwitchOrg(ctx context.Context, orgID tenancy.OrgID, userID identity.UserID) (*tenancy.Organization, tenancy.Role, error) {
	member, err := s.repo.GetMember(ctx, orgID, userID)
	if err != nil {
		return nil, "", serrors.Forbidden("not a member of this organization")
	}
	if err := s.repo.UpdateLastAccessed(ctx, orgID, userID, time.Now()); err != nil {
		return nil, "", err
	}
	org, err := s.repo.GetOrg(ctx, orgID)
	if err != nil {
		return nil, "", err
	}
	s.record(ctx, orgID, userID, "org.switched", string(orgID))
	return org, member.Role, nil
}

// SelectOrgContext resolves the org context login embeds in its response:
// the user's most-recently-accessed organization, falling back to their
// personal organization.
func (s *Service) SelectOrgContext(ctx context.Context, userID identity.UserID) (*tenancy.Organization, tenancy.Role, error) {
	org, member, err := s.repo.SelectOrgContext(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	return org, member.Role, nil
}

// GetOrg fetches an organization. Requires any membership.
func (s *Service) GetOrg(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID) (*tenancy.Organization, error) {
	if _, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleMember); err != nil {
		return nil, err
	}
	return s.repo.GetOrg(ctx, orgID)
}

// UpdateOrg renames an organization. Requires admin or owner.
func (s *Service) UpdateOrg(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID, name string) (*tenancy.Organization, error) {
	if _, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleAdmin); err != nil {
		return nil, err
	}
	org, err := s.repo.GetOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		org.Name = name
	}
	org.UpdatedAt = time.Now()
	if err := s.repo.UpdateOrg(ctx, org); err != nil {
		return nil, err
	}
	s.record(ctx, orgID, actorID, "org.updated", org.Name)
	return org, nil
}

// DeleteOrg soft-deletes a non-personal organization. Requires ownership.
func (s *Service) DeleteOrg(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID) error {
	if _, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleOwner); err != nil {
		return err
	}
	org, err := s.repo.GetOrg(ctx, orgID)
	if err != nil {
		return err
	}
	if org.IsPersonal {
		return serrors.Conflict("a personal organization cannot be deleted")
	}
	now := time.Now()
	org.DeletedAt = &now
	org.UpdatedAt = now
	if err := s.repo.UpdateOrg(ctx, org); err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "org.deleted", string(orgID))
	return nil
}

// LeaveOrg removes the caller from an organization they belong to, refusing
// to let the organization's last owner leave.
func (s *Service) LeaveOrg(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID) error {
	member, err := s.repo.GetMember(ctx, orgID, actorID)
	if err != nil {
		return serrors.Forbidden("not a member of this organization")
	}
	if member.Role == tenancy.RoleOwner {
		err := s.repo.WithinTx(ctx, func(txCtx context.Context) error {
			owners, err := s.repo.CountOwners(txCtx, orgID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return serrors.Conflict("the last owner cannot leave the organization")
			}
			return s.repo.RemoveMember(txCtx, orgID, actorID)
		})
		if err != nil {
			return err
		}
	} else if err := s.repo.RemoveMember(ctx, orgID, actorID); err != nil {
		return err
	}
	s.record(ctx, orgID, actorID, "member.left", string(actorID))
	return nil
}

// ListMembers lists an organization's members. Requires any membership.
func (s *Service) ListMembers(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID) ([]*tenancy.Member, error) {
	if _, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleMember); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, orgID)
}

// ListActivity returns the organization's recent activity log entries.
func (s *Service) ListActivity(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID, limit int) ([]*tenancy.ActivityEntry, error) {
	if _, err := s.requireRole(ctx, orgID, actorID, tenancy.RoleMember); err != nil {
		return nil, err
	}
	return s.repo.ListActivity(ctx, orgID, limit)
}

func (s *Service) record(ctx context.Context, orgID tenancy.OrgID, actorID identity.UserID, action, target string) {
	entry := &tenancy.ActivityEntry{OrgID: orgID, ActorID: actorID, Action: action, Target: target, CreatedAt: time.Now()}
	if err := s.repo.RecordActivity(ctx, entry); err != nil && s.logger != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to record activity entry")
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sobshdev/altenia/infrastructure/logging"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
	"github.com/sobshdev/altenia/internal/repository/memory"
)

func newTestService() (*Service, identity.UserID) {
	repo := memory.NewTenancyRepository()
	svc := NewService(repo, logging.NewFromEnv("test"))
	return svc, identity.NewUserID()
}

func TestCreateOrg_UniqueSlug(t *testing.T) {
	svc, owner := newTestService()
	ctx := context.Background()

	org1, err := svc.CreateOrg(ctx, "Acme Inc", owner)
	require.NoError(t, err)
	require.Regexp(t, `^acme-inc-[a-z0-9]{4}$`, org1.Slug)

	org2, err := svc.CreateOrg(ctx, "Acme Inc", identity.NewUserID())
	require.NoError(t, err)
	require.NotEqual(t, org1.Slug, org2.Slug)
}

func TestRemoveMember_LastOwnerProtected(t *testing.T) {
	svc, owner := newTestService()
	ctx := context.Background()
	org, err := svc.CreateOrg(ctx, "Solo Org", owner)
	require.NoError(t, err)

	err = svc.RemoveMember(ctx, org.ID, owner, owner)
	require.Error(t, err)
}

func TestInviteAcceptAndRoleChange(t *testing.T) {
	svc, owner := newTestService()
	ctx := context.Background()
	org, err := svc.CreateOrg(ctx, "Team Org", owner)
	require.NoError(t, err)

	inv, err := svc.InviteMember(ctx, org.ID, owner, "new@example.com", tenancy.RoleMember)
	require.NoError(t, err)

	newUser := identity.NewUserID()
	_, err = svc.AcceptInvite(ctx, inv.Token, newUser)
	require.NoError(t, err)

	err = svc.ChangeRole(ctx, org.ID, owner, newUser, tenancy.RoleAdmin)
	require.NoError(t, err)

	members, err := svc.ListMembers(ctx, org.ID, owner)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestTransferOwnership(t *testing.T) {
	svc, owner := newTestService()
	ctx := context.Background()
	org, err := svc.CreateOrg(ctx, "Transfer Org", owner)
	require.NoError(t, err)

	inv, err := svc.InviteMember(ctx, org.ID, owner, "heir@example.com", tenancy.RoleAdmin)
	require.NoError(t, err)
	heir := identity.NewUserID()
	_, err = svc.AcceptInvite(ctx, inv.Token, heir)
	require.NoError(t, err)

	err = svc.TransferOwnership(ctx, org.ID, owner, heir)
	require.NoError(t, err)

	err = svc.RemoveMember(ctx, org.ID, heir, heir)
	require.Error(t, err, "heir is now the sole owner and cannot be removed")
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	serrors "github.com/sobshdev/altenia/infrastructure/errors"
	"github.com/sobshdev/altenia/internal/domain/identity"
	"github.com/sobshdev/altenia/internal/domain/tenancy"
)

// TenancyRepository is a Postgres-backed tenancy.Repository implementation.
type TenancyRepository struct {
	db *sqlx.DB
}

// NewTenancyRepository constructs a Postgres tenancy repository.
func NewTenancyRepository(db *sqlx.DB) *TenancyRepository {
	return &TenancyRepository{db: db}
}

type orgRow struct {
	ID         string       `db:"id"`
	Name       string       `db:"name"`
	Slug       string       `db:"slug"`
	IsPersonal bool         `db:"is_personal"`
	DeletedAt  sql.NullTime `db:"deleted_at"`
	CreatedAt  time.Time    `db:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at"`
}

func (row orgRow) toDomain() *tenancy.Organization {
	o := &tenancy.Organization{
		ID:         tenancy.OrgID(row.ID),
		Name:       row.Name,
		Slug:       row.Slug,
		IsPersonal: row.IsPersonal,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.DeletedAt.Valid {
		o.DeletedAt = &row.DeletedAt.Time
	}
	return o
}

const orgColumns = `id, name, slug, is_personal, deleted_at, created_at, updated_at`

func (r *TenancyRepository) CreateOrg(ctx context.Context, org *tenancy.Organization) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, is_personal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, org.ID, org.Name, org.Slug, org.IsPersonal, org.CreatedAt, org.UpdatedAt)
	if isUniqueViolation(err) {
		return serrors.AlreadyExists("organization", org.Slug)
	}
	if err != nil {
		return serrors.DatabaseError("tenancy.CreateOrg", err)
	}
	return nil
}

func (r *TenancyRepository) GetOrg(ctx context.Context, id tenancy.OrgID) (*tenancy.Organization, error) {
	var row orgRow
	err := r.db.GetContext(ctx, &row, `SELECT `+orgColumns+` FROM organizations WHERE id = $1 AND deleted_at IS NULL`, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("organization", string(id))
	}
	if err != nil {
		return nil, serrors.DatabaseError("tenancy.GetOrg", err)
	}
	return row.toDomain(), nil
}

func (r *TenancyRepository) GetOrgBySlug(ctx context.Context, slug string) (*tenancy.Organization, error) {
	var row orgRow
	err := r.db.GetContext(ctx, &row, `SELECT `+orgColumns+` FROM organizations WHERE slug = $1 AND deleted_at IS NULL`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("organization", slug)
	}
	if err != nil {
		return nil, serrors.DatabaseError("tenancy.GetOrgBySlug", err)
	}
	return row.toDomain(), nil
}

func (r *TenancyRepository) UpdateOrg(ctx context.Context, org *tenancy.Organization) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE organizations
		SET name = $1, slug = $2, deleted_at = $3, updated_at = $4
		WHERE id = $5
	`, org.Name, org.Slug, org.DeletedAt, time.Now(), string(org.ID))
	return requireRowUpdated(res, err, "organization", string(org.ID))
}

func (r *TenancyRepository) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var taken bool
	err := r.db.GetContext(ctx, &taken, `SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)`, slug)
	if err != nil {
		return false, serrors.DatabaseError("tenancy.SlugTaken", err)
	}
	return taken, nil
}

func (r *TenancyRepository) AddMember(ctx context.Context, m *tenancy.Member) error {
	lastAccessed := m.LastAccessedAt
	if lastAccessed.IsZero() {
		lastAccessed = m.JoinedAt
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO org_members (org_id, user_id, role, joined_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (org_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, m.OrgID, m.UserID, string(m.Role), m.JoinedAt, lastAccessed)
	if err != nil {
		return serrors.DatabaseError("tenancy.AddMember", err)
	}
	return nil
}

type memberRow struct {
	OrgID          string    `db:"org_id"`
	UserID         string    `db:"user_id"`
	Role           string    `db:"role"`
	JoinedAt       time.Time `db:"joined_at"`
	LastAccessedAt time.Time `db:"last_accessed_at"`
}

func (row memberRow) toDomain() *tenancy.Member {
	return &tenancy.Member{
		OrgID:          tenancy.OrgID(row.OrgID),
		UserID:         identity.UserID(row.UserID),
		Role:           tenancy.Role(row.Role),
		JoinedAt:       row.JoinedAt,
		LastAccessedAt: row.LastAccessedAt,
	}
}

const memberColumns = `org_id, user_id, role, joined_at, last_accessed_at`

func (r *TenancyRepository) GetMember(ctx context.Context, orgID tenancy.OrgID, userID identity.UserID) (*tenancy.Member, error) {
	var row memberRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+memberColumns+` FROM org_members WHERE org_id = $1 AND user_id = $2
	`, string(orgID), string(userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("member", string(userID))
	}
	if err != nil {
		return nil, serrors.DatabaseError("tenancy.GetMember", err)
	}
	return row.toDomain(), nil
}

func (r *TenancyRepository) UpdateMemberRole(ctx context.Context, orgID tenancy.OrgID, userID identity.UserID, role tenancy.Role) error {
	res, err := execerFrom(ctx, r.db).ExecContext(ctx, `
		UPDATE org_members SET role = $1 WHERE org_id = $2 AND user_id = $3
	`, string(role), string(orgID), string(userID))
	return requireRowUpdated(res, err, "member", string(userID))
}

func (r *TenancyRepository) RemoveMember(ctx context.Context, orgID tenancy.OrgID, userID identity.UserID) error {
	_, err := execerFrom(ctx, r.db).ExecContext(ctx, `DELETE FROM org_members WHERE org_id = $1 AND user_id = $2`, string(orgID), string(userID))
	if err != nil {
		return serrors.DatabaseError("tenancy.RemoveMember", err)
	}
	return nil
}

// UpdateLastAccessed stamps a member's last-accessed time, used by the org
// switch operation and by initial org creation.
func (r *TenancyRepository) UpdateLastAccessed(ctx context.Context, orgID tenancy.OrgID, userID identity.UserID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE org_members SET last_accessed_at = $1 WHERE org_id = $2 AND user_id = $3
	`, at, string(orgID), string(userID))
	return requireRowUpdated(res, err, "member", string(userID))
}

// SelectOrgContext picks the org context login embeds in its response: the
// membership with the most recent last_accessed_at, falling back to the
// user's personal org on ties (a freshly registered user has exactly one
// membership, so this resolves to it immediately).
func (r *TenancyRepository) SelectOrgContext(ctx context.Context, userID identity.UserID) (*tenancy.Organization, *tenancy.Member, error) {
	var row struct {
		orgRow
		MemberRole           string    `db:"member_role"`
		MemberJoinedAt       time.Time `db:"member_joined_at"`
		MemberLastAccessedAt time.Time `db:"member_last_accessed_at"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT o.id, o.name, o.slug, o.is_personal, o.deleted_at, o.created_at, o.updated_at,
		       m.role AS member_role, m.joined_at AS member_joined_at, m.last_accessed_at AS member_last_accessed_at
		FROM organizations o
		JOIN org_members m ON m.org_id = o.id
		WHERE m.user_id = $1 AND o.deleted_at IS NULL
		ORDER BY m.last_accessed_at DESC, o.is_personal DESC
		LIMIT 1
	`, string(userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, serrors.NotFound("organization", string(userID))
	}
	if err != nil {
		return nil, nil, serrors.DatabaseError("tenancy.SelectOrgContext", err)
	}
	org := row.orgRow.toDomain()
	member := &tenancy.Member{
		OrgID:          org.ID,
		UserID:         userID,
		Role:           tenancy.Role(row.MemberRole),
		JoinedAt:       row.MemberJoinedAt,
		LastAccessedAt: row.MemberLastAccessedAt,
	}
	return org, member, nil
}

// WithinTx runs fn inside a real transaction so the CountOwners row lock it
// takes via FOR UPDATE remains held across the subsequent
// UpdateMemberRole/RemoveMember call, closing the concurrent-demote race.
func (r *TenancyRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return serrors.DatabaseError("tenancy.WithinTx.begin", err)
	}
	if err := fn(withTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return serrors.DatabaseError("tenancy.WithinTx.commit", err)
	}
	return nil
}

func (r *TenancyRepository) ListMembers(ctx context.Context, orgID tenancy.OrgID) ([]*tenancy.Member, error) {
	var rows []memberRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+memberColumns+` FROM org_members WHERE org_id = $1
	`, string(orgID)); err != nil {
		return nil, serrors.DatabaseError("tenancy.ListMembers", err)
	}
	out := make([]*tenancy.Member, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// CountOwners locks the owner rows FOR UPDATE (Postgres rejects FOR UPDATE
// combined with an aggregate, so this selects and counts the locked rows
// rather than selecting count(*) directly) and counts them. The lock only
// has effect when ctx carries a transaction from WithinTx; a caller on the
// bare *sqlx.DB still gets a correct, unlocked count.
func (r *TenancyRepository) CountOwners(ctx context.Context, orgID tenancy.OrgID) (int, error) {
	var ownerIDs []string
	err := execerFrom(ctx, r.db).SelectContext(ctx, &ownerIDs, `
		SELECT user_id FROM org_members WHERE org_id = $1 AND role = $2 FOR UPDATE
	`, string(orgID), string(tenancy.RoleOwner))
	if err != nil {
		return 0, serrors.DatabaseError("tenancy.CountOwners", err)
	}
	return len(ownerIDs), nil
}

func (r *TenancyRepository) ListOrgsForUser(ctx context.Context, userID identity.UserID) ([]*tenancy.Organization, error) {
	var rows []orgRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT o.id, o.name, o.slug, o.is_personal, o.deleted_at, o.created_at, o.updated_at
		FROM organizations o
		JOIN org_members m ON m.org_id = o.id
		WHERE m.user_id = $1 AND o.deleted_at IS NULL
	`, string(userID)); err != nil {
		return nil, serrors.DatabaseError("tenancy.ListOrgsForUser", err)
	}
	out := make([]*tenancy.Organization, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

type inviteRow struct {
	ID        string    `db:"id"`
	OrgID     string    `db:"org_id"`
	Email     string    `db:"email"`
	Role      string    `db:"role"`
	Status    string    `db:"status"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (row inviteRow) toDomain() *tenancy.Invite {
	return &tenancy.Invite{
		ID:        tenancy.InviteID(row.ID),
		OrgID:     tenancy.OrgID(row.OrgID),
		Email:     row.Email,
		Role:      tenancy.Role(row.Role),
		Status:    tenancy.InviteStatus(row.Status),
		Token:     row.Token,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}
}

const inviteColumns = `id, org_id, email, role, status, token, expires_at, created_at`

func (r *TenancyRepository) CreateInvite(ctx context.Context, inv *tenancy.Invite) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO org_invites (id, org_id, email, role, status, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inv.ID, inv.OrgID, inv.Email, string(inv.Role), string(inv.Status), inv.Token, inv.ExpiresAt, inv.CreatedAt)
	if err != nil {
		return serrors.DatabaseError("tenancy.CreateInvite", err)
	}
	return nil
}

func (r *TenancyRepository) GetInviteByToken(ctx context.Context, token string) (*tenancy.Invite, error) {
	var row inviteRow
	err := r.db.GetContext(ctx, &row, `SELECT `+inviteColumns+` FROM org_invites WHERE token = $1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, serrors.NotFound("invite", token)
	}
	if err != nil {
		return nil, serrors.DatabaseError("tenancy.GetInviteByToken", err)
	}
	return row.toDomain(), nil
}

func (r *TenancyRepository) ListPendingInvites(ctx context.Context, orgID tenancy.OrgID) ([]*tenancy.Invite, error) {
	var rows []inviteRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+inviteColumns+` FROM org_invites WHERE org_id = $1 AND status = $2
	`, string(orgID), string(tenancy.InvitePending)); err != nil {
		return nil, serrors.DatabaseError("tenancy.ListPendingInvites", err)
	}
	out := make([]*tenancy.Invite, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *TenancyRepository) UpdateInviteStatus(ctx context.Context, id tenancy.InviteID, status tenancy.InviteStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE org_invites SET status = $1 WHERE id = $2`, string(status), string(id))
	return requireRowUpdated(res, err, "invite", string(id))
}

func (r *TenancyRepository) ExpirePendingInvites(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE org_invites SET status = $1 WHERE status = $2 AND expires_at < $3
	`, string(tenancy.InviteExpired), string(tenancy.InvitePending), now)
	if err != nil {
		return 0, serrors.DatabaseError("tenancy.ExpirePendingInvites", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, serrors.DatabaseError("tenancy.ExpirePendingInvites.rows_affected", err)
	}
	return int(n), nil
}

func (r *TenancyRepository) RecordActivity(ctx context.Context, entry *tenancy.ActivityEntry) error {
	if entry.ID == "" {
		entry.ID = "act_" + string(entry.OrgID) + "_" + entry.CreatedAt.Format(time.RFC3339Nano)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO org_activity (id, org_id, actor_id, action, target, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.OrgID, entry.ActorID, entry.Action, entry.Target, entry.CreatedAt)
	if err != nil {
		return serrors.DatabaseError("tenancy.RecordActivity", err)
	}
	return nil
}

type activityRow struct {
	ID        string    `db:"id"`
	OrgID     string    `db:"org_id"`
	ActorID   string    `db:"actor_id"`
	Action    string    `db:"action"`
	Target    string    `db:"target"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *TenancyRepository) ListActivity(ctx context.Context, orgID tenancy.OrgID, limit int) ([]*tenancy.ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []activityRow
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT id, org_id, actor_id, action, target, created_at
		FROM org_activity WHERE org_id = $1 ORDER BY created_at DESC LIMIT $2
	`, string(orgID), limit); err != nil {
		return nil, serrors.DatabaseError("tenancy.ListActivity", err)
	}
	out := make([]*tenancy.ActivityEntry, len(rows))
	for i, row := range rows {
		out[i] = &tenancy.ActivityEntry{
			ID:        row.ID,
			OrgID:     tenancy.OrgID(row.OrgID),
			ActorID:   identity.UserID(row.ActorID),
			Action:    row.Action,
			Target:    row.Target,
			CreatedAt: row.CreatedAt,
		}
	}
	return out, nil
}

// Package sqlite provides the SQLite-backed consent store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pmyapp/accord/internal/consent/contract"
	"github.com/pmyapp/accord/internal/consent/flow"
	"github.com/pmyapp/accord/internal/platform/storage/sqlitemigrate"
	"github.com/pmyapp/accord/internal/services/consent/storage"
	"github.com/pmyapp/accord/internal/services/consent/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// Store is a SQLite-backed store implementing every consent storage
// interface.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens the consent store at the provided path and applies embedded
// migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database. Close is nil-safe so callers
// can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PutContract inserts or replaces a contract row.
func (s *Store) PutContract(ctx context.Context, c contract.Contract) error {
	return putContract(ctx, s.sqlDB, c)
}

func putContract(ctx context.Context, db execer, c contract.Contract) error {
	jurisdiction, err := json.Marshal(c.Jurisdiction)
	if err != nil {
		return fmt.Errorf("encode jurisdiction: %w", err)
	}
	parties, err := json.Marshal(c.Parties)
	if err != nil {
		return fmt.Errorf("encode parties: %w", err)
	}
	acts, err := json.Marshal(c.Acts)
	if err != nil {
		return fmt.Errorf("encode acts: %w", err)
	}

	_, err = db.ExecContext(ctx, `
INSERT INTO contracts (
    id, owner_user_id, encounter_type, jurisdiction, parties, acts,
    start_time, duration_minutes, method, summary, status, is_collaborative,
    revoked_by, revoked_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    owner_user_id = excluded.owner_user_id,
    encounter_type = excluded.encounter_type,
    jurisdiction = excluded.jurisdiction,
    parties = excluded.parties,
    acts = excluded.acts,
    start_time = excluded.start_time,
    duration_minutes = excluded.duration_minutes,
    method = excluded.method,
    summary = excluded.summary,
    status = excluded.status,
    is_collaborative = excluded.is_collaborative,
    revoked_by = excluded.revoked_by,
    revoked_at = excluded.revoked_at,
    updated_at = excluded.updated_at`,
		c.ID, c.OwnerUserID, c.EncounterType, string(jurisdiction), string(parties), string(acts),
		toNullMillis(c.StartTime), c.DurationMinutes, string(c.Method), c.Summary, string(c.Status), boolToInt(c.IsCollaborative),
		c.RevokedBy, toNullMillis(c.RevokedAt), toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put contract: %w", err)
	}
	return nil
}

const contractColumns = `id, owner_user_id, encounter_type, jurisdiction, parties, acts,
    start_time, duration_minutes, method, summary, status, is_collaborative,
    revoked_by, revoked_at, created_at, updated_at`

// GetContract loads one contract by ID.
func (s *Store) GetContract(ctx context.Context, id string) (contract.Contract, error) {
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+contractColumns+" FROM contracts WHERE id = ?", id)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return contract.Contract{}, storage.ErrNotFound
	}
	if err != nil {
		return contract.Contract{}, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

// ListContractsByOwner loads every contract owned by a user, newest first.
func (s *Store) ListContractsByOwner(ctx context.Context, ownerUserID string) ([]contract.Contract, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE owner_user_id = ? ORDER BY created_at DESC", ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []contract.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contracts: %w", err)
	}
	return contracts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (contract.Contract, error) {
	var (
		c               contract.Contract
		jurisdiction    string
		parties         string
		acts            string
		startTime       sql.NullInt64
		method          string
		status          string
		isCollaborative int
		revokedAt       sql.NullInt64
		createdAt       int64
		updatedAt       int64
	)
	err := row.Scan(
		&c.ID, &c.OwnerUserID, &c.EncounterType, &jurisdiction, &parties, &acts,
		&startTime, &c.DurationMinutes, &method, &c.Summary, &status, &isCollaborative,
		&c.RevokedBy, &revokedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return contract.Contract{}, err
	}
	if err := json.Unmarshal([]byte(jurisdiction), &c.Jurisdiction); err != nil {
		return contract.Contract{}, fmt.Errorf("decode jurisdiction: %w", err)
	}
	if err := json.Unmarshal([]byte(parties), &c.Parties); err != nil {
		return contract.Contract{}, fmt.Errorf("decode parties: %w", err)
	}
	if err := json.Unmarshal([]byte(acts), &c.Acts); err != nil {
		return contract.Contract{}, fmt.Errorf("decode acts: %w", err)
	}
	c.StartTime = fromNullMillis(startTime)
	c.Method = flow.Method(method)
	c.Status = contract.Status(status)
	c.IsCollaborative = isCollaborative != 0
	c.RevokedAt = fromNullMillis(revokedAt)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

// ShareWithCollaborator flips the contract collaborative and inserts the
// collaborator in one transaction.
func (s *Store) ShareWithCollaborator(ctx context.Context, c contract.Contract, collab contract.Collaborator) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := putContract(ctx, tx, c); err != nil {
			return err
		}
		return putCollaborator(ctx, tx, collab)
	})
}

// ShareWithInvitation flips the contract collaborative and inserts the
// invitation in one transaction.
func (s *Store) ShareWithInvitation(ctx context.Context, c contract.Contract, inv contract.Invitation) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := putContract(ctx, tx, c); err != nil {
			return err
		}
		return putInvitation(ctx, tx, inv)
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// PutCollaborator inserts or replaces a collaborator row.
func (s *Store) PutCollaborator(ctx context.Context, collab contract.Collaborator) error {
	return putCollaborator(ctx, s.sqlDB, collab)
}

func putCollaborator(ctx context.Context, db execer, collab contract.Collaborator) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO collaborators (
    id, contract_id, participant_type, role, user_id, email, display_name,
    status, rejection_reason, responded_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    participant_type = excluded.participant_type,
    role = excluded.role,
    user_id = excluded.user_id,
    email = excluded.email,
    display_name = excluded.display_name,
    status = excluded.status,
    rejection_reason = excluded.rejection_reason,
    responded_at = excluded.responded_at,
    updated_at = excluded.updated_at`,
		collab.ID, collab.ContractID, string(collab.ParticipantType), string(collab.Role), collab.UserID, collab.Email, collab.DisplayName,
		string(collab.Status), collab.RejectionReason, toNullMillis(collab.RespondedAt), toMillis(collab.CreatedAt), toMillis(collab.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put collaborator: %w", err)
	}
	return nil
}

const collaboratorColumns = `id, contract_id, participant_type, role, user_id, email, display_name,
    status, rejection_reason, responded_at, created_at, updated_at`

// GetCollaborator loads one collaborator by ID.
func (s *Store) GetCollaborator(ctx context.Context, id string) (contract.Collaborator, error) {
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+collaboratorColumns+" FROM collaborators WHERE id = ?", id)
	collab, err := scanCollaborator(row)
	if err == sql.ErrNoRows {
		return contract.Collaborator{}, storage.ErrNotFound
	}
	if err != nil {
		return contract.Collaborator{}, fmt.Errorf("get collaborator: %w", err)
	}
	return collab, nil
}

// ListCollaboratorsByContract loads every collaborator on a contract in
// insertion order.
func (s *Store) ListCollaboratorsByContract(ctx context.Context, contractID string) ([]contract.Collaborator, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+collaboratorColumns+" FROM collaborators WHERE contract_id = ? ORDER BY created_at ASC", contractID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	var collaborators []contract.Collaborator
	for rows.Next() {
		collab, err := scanCollaborator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		collaborators = append(collaborators, collab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collaborators: %w", err)
	}
	return collaborators, nil
}

func scanCollaborator(row rowScanner) (contract.Collaborator, error) {
	var (
		collab          contract.Collaborator
		participantType string
		role            string
		status          string
		respondedAt     sql.NullInt64
		createdAt       int64
		updatedAt       int64
	)
	err := row.Scan(
		&collab.ID, &collab.ContractID, &participantType, &role, &collab.UserID, &collab.Email, &collab.DisplayName,
		&status, &collab.RejectionReason, &respondedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return contract.Collaborator{}, err
	}
	collab.ParticipantType = contract.ParticipantType(participantType)
	collab.Role = contract.CollaboratorRole(role)
	collab.Status = contract.CollaboratorStatus(status)
	collab.RespondedAt = fromNullMillis(respondedAt)
	collab.CreatedAt = fromMillis(createdAt)
	collab.UpdatedAt = fromMillis(updatedAt)
	return collab, nil
}

// PutInvitation inserts or replaces an invitation row.
func (s *Store) PutInvitation(ctx context.Context, inv contract.Invitation) error {
	return putInvitation(ctx, s.sqlDB, inv)
}

func putInvitation(ctx context.Context, db execer, inv contract.Invitation) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO invitations (
    id, contract_id, inviter_user_id, email, code, status,
    expires_at, accepted_by, accepted_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    accepted_by = excluded.accepted_by,
    accepted_at = excluded.accepted_at`,
		inv.ID, inv.ContractID, inv.InviterUserID, inv.Email, inv.Code, string(inv.Status),
		toMillis(inv.ExpiresAt), inv.AcceptedBy, toNullMillis(inv.AcceptedAt), toMillis(inv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put invitation: %w", err)
	}
	return nil
}

const invitationColumns = `id, contract_id, inviter_user_id, email, code, status,
    expires_at, accepted_by, accepted_at, created_at`

// GetInvitation loads one invitation by ID.
func (s *Store) GetInvitation(ctx context.Context, id string) (contract.Invitation, error) {
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+invitationColumns+" FROM invitations WHERE id = ?", id)
	return s.scanInvitationRow(row)
}

// GetInvitationByCode loads one invitation by its opaque acceptance code.
// Expired invitations are returned as-is so callers can report expiry rather
// than absence.
func (s *Store) GetInvitationByCode(ctx context.Context, code string) (contract.Invitation, error) {
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+invitationColumns+" FROM invitations WHERE code = ?", code)
	return s.scanInvitationRow(row)
}

func (s *Store) scanInvitationRow(row rowScanner) (contract.Invitation, error) {
	var (
		inv        contract.Invitation
		status     string
		expiresAt  int64
		acceptedAt sql.NullInt64
		createdAt  int64
	)
	err := row.Scan(
		&inv.ID, &inv.ContractID, &inv.InviterUserID, &inv.Email, &inv.Code, &status,
		&expiresAt, &inv.AcceptedBy, &acceptedAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return contract.Invitation{}, storage.ErrNotFound
	}
	if err != nil {
		return contract.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	inv.Status = contract.InvitationStatus(status)
	inv.ExpiresAt = fromMillis(expiresAt)
	inv.AcceptedAt = fromNullMillis(acceptedAt)
	inv.CreatedAt = fromMillis(createdAt)
	return inv, nil
}

// PutAmendment inserts or replaces an amendment row.
func (s *Store) PutAmendment(ctx context.Context, a contract.Amendment) error {
	changes, err := json.Marshal(a.Changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	approvers, err := json.Marshal(a.Approvers)
	if err != nil {
		return fmt.Errorf("encode approvers: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO amendments (
    id, contract_id, requester_user_id, amendment_type, changes, reason, status,
    approvers, rejected_by, rejection_reason, resolved_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status,
    approvers = excluded.approvers,
    rejected_by = excluded.rejected_by,
    rejection_reason = excluded.rejection_reason,
    resolved_at = excluded.resolved_at,
    updated_at = excluded.updated_at`,
		a.ID, a.ContractID, a.RequesterUserID, string(a.Type), string(changes), a.Reason, string(a.Status),
		string(approvers), a.RejectedBy, a.RejectionReason, toNullMillis(a.ResolvedAt), toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put amendment: %w", err)
	}
	return nil
}

const amendmentColumns = `id, contract_id, requester_user_id, amendment_type, changes, reason, status,
    approvers, rejected_by, rejection_reason, resolved_at, created_at, updated_at`

// GetAmendment loads one amendment by ID.
func (s *Store) GetAmendment(ctx context.Context, id string) (contract.Amendment, error) {
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+amendmentColumns+" FROM amendments WHERE id = ?", id)
	a, err := scanAmendment(row)
	if err == sql.ErrNoRows {
		return contract.Amendment{}, storage.ErrNotFound
	}
	if err != nil {
		return contract.Amendment{}, fmt.Errorf("get amendment: %w", err)
	}
	return a, nil
}

// ListAmendmentsByContract loads every amendment on a contract, newest first.
func (s *Store) ListAmendmentsByContract(ctx context.Context, contractID string) ([]contract.Amendment, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+amendmentColumns+" FROM amendments WHERE contract_id = ? ORDER BY created_at DESC", contractID)
	if err != nil {
		return nil, fmt.Errorf("list amendments: %w", err)
	}
	defer rows.Close()

	var amendments []contract.Amendment
	for rows.Next() {
		a, err := scanAmendment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan amendment: %w", err)
		}
		amendments = append(amendments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate amendments: %w", err)
	}
	return amendments, nil
}

func scanAmendment(row rowScanner) (contract.Amendment, error) {
	var (
		a             contract.Amendment
		amendmentType string
		changes       string
		status        string
		approvers     string
		resolvedAt    sql.NullInt64
		createdAt     int64
		updatedAt     int64
	)
	err := row.Scan(
		&a.ID, &a.ContractID, &a.RequesterUserID, &amendmentType, &changes, &a.Reason, &status,
		&approvers, &a.RejectedBy, &a.RejectionReason, &resolvedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return contract.Amendment{}, err
	}
	parsed, err := contract.ParseChanges([]byte(changes))
	if err != nil {
		// A corrupted payload is surfaced at vote time, not load time.
		parsed = contract.Changes{}
	}
	a.Changes = parsed
	if err := json.Unmarshal([]byte(approvers), &a.Approvers); err != nil {
		return contract.Amendment{}, fmt.Errorf("decode approvers: %w", err)
	}
	a.Type = contract.AmendmentType(amendmentType)
	a.Status = contract.AmendmentStatus(status)
	a.ResolvedAt = fromNullMillis(resolvedAt)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

// PutPreferences inserts or replaces a user's flow defaults.
func (s *Store) PutPreferences(ctx context.Context, userID string, prefs flow.Preferences) error {
	defaults, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO preferences (user_id, defaults, updated_at) VALUES (?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    defaults = excluded.defaults,
    updated_at = excluded.updated_at`,
		userID, string(defaults), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put preferences: %w", err)
	}
	return nil
}

// GetPreferences loads a user's flow defaults.
func (s *Store) GetPreferences(ctx context.Context, userID string) (flow.Preferences, error) {
	var defaults string
	row := s.sqlDB.QueryRowContext(ctx, "SELECT defaults FROM preferences WHERE user_id = ?", userID)
	if err := row.Scan(&defaults); err != nil {
		if err == sql.ErrNoRows {
			return flow.Preferences{}, storage.ErrNotFound
		}
		return flow.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	var prefs flow.Preferences
	if err := json.Unmarshal([]byte(defaults), &prefs); err != nil {
		return flow.Preferences{}, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

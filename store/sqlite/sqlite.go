/*
Package sqlite provides a SQLite-backed implementation of the allocation
engine's storage interfaces.

PURPOSE:
  Implements AssignmentStore, StaffConfigStore, PrisonConfigStore and
  ReferenceDataStore using SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  assignments:    Person-to-staff relationship rows (active and historical)
  staff_config:   Per-staff capacity/status overrides
  prison_config:  Per-prison, per-policy settings
  reference_data: (domain, code) -> description records

INVARIANT ENFORCEMENT:
  A partial unique index guarantees at most one active assignment per
  (person_id, policy). Two concurrent writers cannot both insert one; the
  loser's constraint violation is mapped to ErrActiveAssignmentExists.

TRANSACTIONS:
  WithTx runs the callback against a transaction-scoped copy of the store.
  The Manager's whole batch - deallocations, overrides, new allocations -
  commits or rolls back together.

WAL MODE:
  SQLite is opened with WAL for better concurrency: multiple readers do not
  block, a single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/allocations.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - allocation/store.go: Interface definitions
  - allocation/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/keyworker-engine/allocation"
)

// querier abstracts *sql.DB and *sql.Tx so every query method works both
// inside and outside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	q  querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, q: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		prison_code TEXT NOT NULL,
		staff_id INTEGER NOT NULL,
		policy TEXT NOT NULL,
		active INTEGER NOT NULL,
		provisional INTEGER NOT NULL DEFAULT 0,
		allocated_at TEXT NOT NULL,
		allocated_by TEXT NOT NULL,
		allocation_reason TEXT NOT NULL,
		deallocated_at TEXT,
		deallocated_by TEXT,
		deallocation_reason TEXT
	);

	-- CRITICAL: at most one active assignment per (person, policy).
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_assignment
		ON assignments(person_id, policy) WHERE active = 1;

	CREATE INDEX IF NOT EXISTS idx_assignments_person
		ON assignments(policy, person_id);
	CREATE INDEX IF NOT EXISTS idx_assignments_staff_active
		ON assignments(policy, prison_code, staff_id) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS staff_config (
		policy TEXT NOT NULL,
		staff_id INTEGER NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		allow_auto_allocation INTEGER NOT NULL,
		PRIMARY KEY (policy, staff_id)
	);

	CREATE TABLE IF NOT EXISTS prison_config (
		prison_code TEXT NOT NULL,
		policy TEXT NOT NULL,
		enabled INTEGER NOT NULL,
		capacity INTEGER NOT NULL,
		allow_auto_allocation INTEGER NOT NULL,
		session_frequency_days INTEGER NOT NULL,
		PRIMARY KEY (prison_code, policy)
	);

	CREATE TABLE IF NOT EXISTS reference_data (
		domain TEXT NOT NULL,
		code TEXT NOT NULL,
		description TEXT NOT NULL,
		PRIMARY KEY (domain, code)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ASSIGNMENT STORE
// =============================================================================

const assignmentColumns = `id, person_id, prison_code, staff_id, policy, active, provisional,
	allocated_at, allocated_by, allocation_reason, deallocated_at, deallocated_by, deallocation_reason`

func (s *Store) FindActiveByPeople(ctx context.Context, policy allocation.PolicyCode, people []allocation.PersonID) ([]allocation.Assignment, error) {
	if len(people) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM assignments
		WHERE policy = ? AND active = 1 AND person_id IN (%s)
		ORDER BY allocated_at, id`, assignmentColumns, placeholders(len(people)))
	args := []any{string(policy)}
	for _, id := range people {
		args = append(args, string(id))
	}
	return s.queryAssignments(ctx, query, args...)
}

func (s *Store) FindActiveByStaff(ctx context.Context, policy allocation.PolicyCode, prison allocation.PrisonCode, staffID allocation.StaffID) ([]allocation.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments
		WHERE policy = ? AND active = 1 AND prison_code = ? AND staff_id = ?
		ORDER BY allocated_at, id`, assignmentColumns)
	return s.queryAssignments(ctx, query, string(policy), string(prison), int64(staffID))
}

func (s *Store) FindByPeople(ctx context.Context, policy allocation.PolicyCode, people []allocation.PersonID) ([]allocation.Assignment, error) {
	if len(people) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM assignments
		WHERE policy = ? AND person_id IN (%s)
		ORDER BY allocated_at, id`, assignmentColumns, placeholders(len(people)))
	args := []any{string(policy)}
	for _, id := range people {
		args = append(args, string(id))
	}
	return s.queryAssignments(ctx, query, args...)
}

func (s *Store) CountActiveByStaff(ctx context.Context, policy allocation.PolicyCode, prison allocation.PrisonCode, staffIDs []allocation.StaffID) (map[allocation.StaffID]int, error) {
	counts := make(map[allocation.StaffID]int)
	if len(staffIDs) == 0 {
		return counts, nil
	}
	query := fmt.Sprintf(`SELECT staff_id, COUNT(*) FROM assignments
		WHERE policy = ? AND active = 1 AND prison_code = ? AND staff_id IN (%s)
		GROUP BY staff_id`, placeholders(len(staffIDs)))
	args := []any{string(policy), string(prison)}
	for _, id := range staffIDs {
		args = append(args, int64(id))
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[allocation.StaffID(id)] = n
	}
	return counts, rows.Err()
}

func (s *Store) LatestAutoAllocationAt(ctx context.Context, policy allocation.PolicyCode, prison allocation.PrisonCode, staffIDs []allocation.StaffID) (map[allocation.StaffID]time.Time, error) {
	latest := make(map[allocation.StaffID]time.Time)
	if len(staffIDs) == 0 {
		return latest, nil
	}
	query := fmt.Sprintf(`SELECT staff_id, MAX(allocated_at) FROM assignments
		WHERE policy = ? AND prison_code = ? AND allocation_reason = ? AND staff_id IN (%s)
		GROUP BY staff_id`, placeholders(len(staffIDs)))
	args := []any{string(policy), string(prison), allocation.ReasonAuto}
	for _, id := range staffIDs {
		args = append(args, int64(id))
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		t, err := parseTime(raw)
		if err != nil {
			return nil, err
		}
		latest[allocation.StaffID(id)] = t
	}
	return latest, rows.Err()
}

func (s *Store) Save(ctx context.Context, a *allocation.Assignment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO assignments (`+assignmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			person_id = excluded.person_id,
			active = excluded.active,
			provisional = excluded.provisional,
			deallocated_at = excluded.deallocated_at,
			deallocated_by = excluded.deallocated_by,
			deallocation_reason = excluded.deallocation_reason`,
		a.ID, string(a.PersonID), string(a.PrisonCode), int64(a.StaffID), string(a.Policy),
		boolInt(a.Active), boolInt(a.Provisional),
		formatTime(a.AllocatedAt), a.AllocatedBy, a.AllocationReason,
		formatTimePtr(a.DeallocatedAt), a.DeallocatedBy, a.DeallocationReason,
	)
	return mapConstraintError(err)
}

func (s *Store) SaveAll(ctx context.Context, as []*allocation.Assignment) error {
	for _, a := range as {
		if err := s.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteProvisional(ctx context.Context, policy allocation.PolicyCode, people []allocation.PersonID) error {
	if len(people) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM assignments
		WHERE policy = ? AND provisional = 1 AND person_id IN (%s)`, placeholders(len(people)))
	args := []any{string(policy)}
	for _, id := range people {
		args = append(args, string(id))
	}
	_, err := s.q.ExecContext(ctx, query, args...)
	return err
}

// WithTx executes fn against a transaction-scoped copy of the store.
func (s *Store) WithTx(ctx context.Context, fn func(allocation.AssignmentStore) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	scoped := &Store{db: s.db, q: tx}
	if err := fn(scoped); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) queryAssignments(ctx context.Context, query string, args ...any) ([]allocation.Assignment, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.Assignment
	for rows.Next() {
		var a allocation.Assignment
		var personID, prison, policy, allocatedAt string
		var staffID int64
		var active, provisional int
		var deallocatedAt, deallocatedBy, deallocationReason sql.NullString
		if err := rows.Scan(&a.ID, &personID, &prison, &staffID, &policy, &active, &provisional,
			&allocatedAt, &a.AllocatedBy, &a.AllocationReason,
			&deallocatedAt, &deallocatedBy, &deallocationReason); err != nil {
			return nil, err
		}
		a.PersonID = allocation.PersonID(personID)
		a.PrisonCode = allocation.PrisonCode(prison)
		a.StaffID = allocation.StaffID(staffID)
		a.Policy = allocation.PolicyCode(policy)
		a.Active = active == 1
		a.Provisional = provisional == 1
		t, err := parseTime(allocatedAt)
		if err != nil {
			return nil, err
		}
		a.AllocatedAt = t
		if deallocatedAt.Valid {
			dt, err := parseTime(deallocatedAt.String)
			if err != nil {
				return nil, err
			}
			a.DeallocatedAt = &dt
		}
		if deallocatedBy.Valid {
			v := deallocatedBy.String
			a.DeallocatedBy = &v
		}
		if deallocationReason.Valid {
			v := deallocationReason.String
			a.DeallocationReason = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// STAFF CONFIG STORE
// =============================================================================

func (s *Store) FindConfigs(ctx context.Context, policy allocation.PolicyCode, staffIDs []allocation.StaffID) (map[allocation.StaffID]allocation.StaffConfig, error) {
	out := make(map[allocation.StaffID]allocation.StaffConfig)
	if len(staffIDs) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT staff_id, capacity, status, allow_auto_allocation
		FROM staff_config WHERE policy = ? AND staff_id IN (%s)`, placeholders(len(staffIDs)))
	args := []any{string(policy)}
	for _, id := range staffIDs {
		args = append(args, int64(id))
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id        int64
			capacity  int
			status    string
			allowAuto int
		)
		if err := rows.Scan(&id, &capacity, &status, &allowAuto); err != nil {
			return nil, err
		}
		out[allocation.StaffID(id)] = allocation.StaffConfig{
			StaffID:             allocation.StaffID(id),
			Policy:              policy,
			Capacity:            capacity,
			Status:              allocation.StaffStatus(status),
			AllowAutoAllocation: allowAuto == 1,
		}
	}
	return out, rows.Err()
}

func (s *Store) SaveStaffConfig(ctx context.Context, cfg allocation.StaffConfig) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO staff_config (policy, staff_id, capacity, status, allow_auto_allocation)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(policy, staff_id) DO UPDATE SET
			capacity = excluded.capacity,
			status = excluded.status,
			allow_auto_allocation = excluded.allow_auto_allocation`,
		string(cfg.Policy), int64(cfg.StaffID), cfg.Capacity, string(cfg.Status), boolInt(cfg.AllowAutoAllocation))
	return err
}

// =============================================================================
// PRISON CONFIG STORE
// =============================================================================

func (s *Store) FindByCode(ctx context.Context, prison allocation.PrisonCode, policy allocation.PolicyCode) (*allocation.PrisonConfig, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT enabled, capacity, allow_auto_allocation, session_frequency_days
		FROM prison_config WHERE prison_code = ? AND policy = ?`,
		string(prison), string(policy))

	var enabled, allowAuto int
	cfg := allocation.PrisonConfig{PrisonCode: prison, Policy: policy}
	err := row.Scan(&enabled, &cfg.Capacity, &allowAuto, &cfg.SessionFrequencyDays)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.Enabled = enabled == 1
	cfg.AllowAutoAllocation = allowAuto == 1
	return &cfg, nil
}

func (s *Store) SavePrisonConfig(ctx context.Context, cfg allocation.PrisonConfig) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO prison_config (prison_code, policy, enabled, capacity, allow_auto_allocation, session_frequency_days)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(prison_code, policy) DO UPDATE SET
			enabled = excluded.enabled,
			capacity = excluded.capacity,
			allow_auto_allocation = excluded.allow_auto_allocation,
			session_frequency_days = excluded.session_frequency_days`,
		string(cfg.PrisonCode), string(cfg.Policy), boolInt(cfg.Enabled), cfg.Capacity,
		boolInt(cfg.AllowAutoAllocation), cfg.SessionFrequencyDays)
	return err
}

// =============================================================================
// REFERENCE DATA STORE
// =============================================================================

func (s *Store) Resolve(ctx context.Context, domain allocation.ReferenceDomain, code string) (*allocation.ReferenceData, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT description FROM reference_data WHERE domain = ? AND code = ?`,
		string(domain), code)

	rd := allocation.ReferenceData{Domain: domain, Code: code}
	err := row.Scan(&rd.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rd, nil
}

// SeedReferenceData inserts or replaces reason records. Called at startup.
func (s *Store) SeedReferenceData(ctx context.Context, records []allocation.ReferenceData) error {
	for _, rd := range records {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO reference_data (domain, code, description) VALUES (?, ?, ?)
			ON CONFLICT(domain, code) DO UPDATE SET description = excluded.description`,
			string(rd.Domain), rd.Code, rd.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// mapConstraintError turns the partial-unique-index violation into the
// engine's conflict error so callers can surface it as such.
func mapConstraintError(err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return allocation.ErrActiveAssignmentExists
	}
	return err
}

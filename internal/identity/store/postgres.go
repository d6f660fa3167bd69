package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"uniid/internal/identity/models"
	dErrors "uniid/pkg/domain-errors"
	"uniid/pkg/platform/sentinel"
	txcontext "uniid/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Constraint names from the people table; see internal/platform/postgres/schema.sql.
const (
	constraintPeoplePK    = "people_pkey"
	constraintPeopleEmail = "people_email_lower_key"
)

const uniqueViolation = "23505"

// PostgresStore persists identities and their audit log in PostgreSQL.
type PostgresStore struct {
	db        *sql.DB
	txTimeout time.Duration
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTxTimeout bounds transactions started without a caller deadline.
func WithTxTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.Or(ctx, s.db)
}

// RunInTx runs fn inside one SQL transaction carried in ctx. Nested calls
// join the outer transaction.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const personColumns = `id, type, first_name, last_name, dob, place_of_birth, nationality, gender,
	email, phone, status, status_changed_at,
	national_id, diploma_type, diploma_year, major, entry_year, student_status,
	faculty_rank, appointment_start, primary_department, secondary_departments,
	office_location, phd_institution, research_areas, contract_type, contract_start,
	contract_end, teaching_hours, staff_department, job_title, grade, staff_entry_date`

func personArgs(p *models.Identity) []any {
	a := &p.Attributes
	return []any{
		p.ID, string(p.Type), p.FirstName, p.LastName, p.DOB, p.PlaceOfBirth, p.Nationality, p.Gender,
		p.Email, p.Phone, string(p.Status), p.StatusChangedAt,
		a.NationalID, a.DiplomaType, a.DiplomaYear, a.Major, a.EntryYear, a.StudentStatus,
		a.FacultyRank, a.AppointmentStart, a.PrimaryDepartment, a.SecondaryDepartments,
		a.OfficeLocation, a.PhDInstitution, a.ResearchAreas, a.ContractType, a.ContractStart,
		a.ContractEnd, a.TeachingHours, a.StaffDepartment, a.JobTitle, a.Grade, a.StaffEntryDate,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPerson(row scanner) (*models.Identity, error) {
	var (
		p      models.Identity
		typ    string
		status string
		since  sql.NullTime
	)
	a := &p.Attributes
	err := row.Scan(
		&p.ID, &typ, &p.FirstName, &p.LastName, &p.DOB, &p.PlaceOfBirth, &p.Nationality, &p.Gender,
		&p.Email, &p.Phone, &status, &since,
		&a.NationalID, &a.DiplomaType, &a.DiplomaYear, &a.Major, &a.EntryYear, &a.StudentStatus,
		&a.FacultyRank, &a.AppointmentStart, &a.PrimaryDepartment, &a.SecondaryDepartments,
		&a.OfficeLocation, &a.PhDInstitution, &a.ResearchAreas, &a.ContractType, &a.ContractStart,
		&a.ContractEnd, &a.TeachingHours, &a.StaffDepartment, &a.JobTitle, &a.Grade, &a.StaffEntryDate,
	)
	if err != nil {
		return nil, err
	}
	p.Type = models.Type(typ)
	p.Status = models.Status(status)
	if since.Valid {
		t := since.Time
		p.StatusChangedAt = &t
	}
	return &p, nil
}

func placeholders(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i)
	}
	return b.String()
}

func (s *PostgresStore) Create(ctx context.Context, identity *models.Identity) error {
	args := personArgs(identity)
	query := `INSERT INTO people (` + personColumns + `) VALUES (` + placeholders(len(args)) + `)`
	if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			switch pqErr.Constraint {
			case constraintPeoplePK:
				return models.ErrDuplicateKey
			case constraintPeopleEmail:
				return models.ErrDuplicateEmail
			}
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1`, id)
	p, err := scanPerson(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Identity, error) {
	return s.queryPeople(ctx, `SELECT `+personColumns+` FROM people ORDER BY id`)
}

func (s *PostgresStore) Search(ctx context.Context, filter models.SearchFilter) ([]*models.Identity, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q := strings.TrimSpace(filter.Query); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		where = append(where, fmt.Sprintf("(first_name ILIKE %[1]s OR last_name ILIKE %[1]s OR email ILIKE %[1]s)", p))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		where = append(where, "type = ANY("+arg(pq.Array(types))+")")
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if filter.Year != "" {
		p := arg(filter.Year)
		where = append(where, fmt.Sprintf("(entry_year = %[1]s OR diploma_year = %[1]s)", p))
	}
	if d := strings.TrimSpace(filter.Department); d != "" {
		p := arg("%" + escapeLike(d) + "%")
		where = append(where, fmt.Sprintf("(primary_department ILIKE %[1]s OR staff_department ILIKE %[1]s)", p))
	}

	query := `SELECT ` + personColumns + ` FROM people`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY first_name, last_name, id`
	return s.queryPeople(ctx, query, args...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (s *PostgresStore) queryPeople(ctx context.Context, query string, args ...any) ([]*models.Identity, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var out []*models.Identity
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindConflicts(ctx context.Context, c *models.Candidate) (models.Conflicts, error) {
	var out models.Conflicts
	ex := s.execer(ctx)
	if c.Email != "" {
		err := ex.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM people WHERE lower(email) = lower($1))`, c.Email,
		).Scan(&out.SameEmail)
		if err != nil {
			return out, fmt.Errorf("check email conflict: %w", err)
		}
	}
	if c.FirstName != "" && c.LastName != "" && c.DOB != "" && c.Type != "" {
		err := ex.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM people
				WHERE lower(first_name) = lower($1) AND lower(last_name) = lower($2)
				  AND dob = $3 AND type = $4
			)`, c.FirstName, c.LastName, c.DOB, c.Type,
		).Scan(&out.SamePerson)
		if err != nil {
			return out, fmt.Errorf("check person conflict: %w", err)
		}
	}
	return out, nil
}

// Update rewrites the editable columns of an identity.
func (s *PostgresStore) Update(ctx context.Context, identity *models.Identity) error {
	a := &identity.Attributes
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE people SET
			first_name = $2, last_name = $3, status = $4, status_changed_at = $5,
			national_id = $6, diploma_type = $7, diploma_year = $8, entry_year = $9,
			faculty_rank = $10, primary_department = $11, staff_department = $12,
			job_title = $13, staff_entry_date = $14
		WHERE id = $1`,
		identity.ID, identity.FirstName, identity.LastName, string(identity.Status), identity.StatusChangedAt,
		a.NationalID, a.DiplomaType, a.DiplomaYear, a.EntryYear,
		a.FacultyRank, a.PrimaryDepartment, a.StaffDepartment,
		a.JobTitle, a.StaffEntryDate,
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM people WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// AppendAudit inserts entries in one statement.
func (s *PostgresStore) AppendAudit(ctx context.Context, entries []models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	var (
		ids      = make([]string, len(entries))
		times    = make([]string, len(entries))
		fields   = make([]string, len(entries))
		oldVals  = make([]string, len(entries))
		newVals  = make([]string, len(entries))
		ordinals = make([]int64, len(entries))
	)
	for i, e := range entries {
		ids[i], fields[i], oldVals[i], newVals[i] = e.IdentityID, e.Field, e.OldValue, e.NewValue
		times[i] = e.ChangedAt.UTC().Format(time.RFC3339Nano)
		ordinals[i] = int64(i)
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit (person_id, changed_at, field, old_value, new_value)
		SELECT person_id, changed_at, field, old_value, new_value
		FROM unnest($1::text[], $2::timestamptz[], $3::text[], $4::text[], $5::text[], $6::bigint[])
			AS e(person_id, changed_at, field, old_value, new_value, ord)
		ORDER BY ord`,
		pq.Array(ids), pq.Array(times), pq.Array(fields), pq.Array(oldVals), pq.Array(newVals), pq.Array(ordinals),
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// History returns the audit entries for id, newest first.
func (s *PostgresStore) History(ctx context.Context, id string) ([]models.AuditEntry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT person_id, changed_at, field, old_value, new_value
		FROM audit WHERE person_id = $1
		ORDER BY changed_at DESC, id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.IdentityID, &e.ChangedAt, &e.Field, &e.OldValue, &e.NewValue); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// CountArchivable counts Inactive identities whose status began at or
// before cutoff.
func (s *PostgresStore) CountArchivable(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT count(*) FROM people WHERE status = 'Inactive' AND status_changed_at <= $1`, cutoff,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archivable: %w", err)
	}
	return n, nil
}

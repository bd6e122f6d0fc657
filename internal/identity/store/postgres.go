package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ssot/internal/identity/models"
	"ssot/internal/matching/blocking"
	"ssot/internal/matching/scoring"
	id "ssot/pkg/domain"
	"ssot/pkg/platform/sentinel"
	txcontext "ssot/pkg/platform/tx"
)

const pqUniqueViolation = "23505"

// PostgresStore persists identity tables in PostgreSQL. It joins the caller's
// transaction when one is present in the context.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

const masterColumns = `
	id, full_name, birth_date, region, phone, email, address,
	verified, source_submission_id, created_at, updated_at
`

func (s *PostgresStore) CreateMaster(ctx context.Context, m *models.Master) error {
	exec := s.execer(ctx)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO master_identities (`+masterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(m.ID), m.FullName, m.BirthDate, m.Region, m.Phone, m.Email, m.Address,
		m.Verified, uuid.UUID(m.SourceSubmissionID), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert master identity: %w", err)
	}
	return s.writeBlockingKeys(ctx, exec, m)
}

func (s *PostgresStore) UpdateMaster(ctx context.Context, m *models.Master) error {
	exec := s.execer(ctx)
	res, err := exec.ExecContext(ctx, `
		UPDATE master_identities
		SET full_name = $2, birth_date = $3, region = $4, phone = $5, email = $6,
			address = $7, verified = $8, updated_at = $9
		WHERE id = $1
	`,
		uuid.UUID(m.ID), m.FullName, m.BirthDate, m.Region, m.Phone, m.Email,
		m.Address, m.Verified, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update master identity: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update master identity: %w", err)
	} else if n == 0 {
		return sentinel.ErrNotFound
	}

	if _, err := exec.ExecContext(ctx, `DELETE FROM master_blocking_keys WHERE master_id = $1`, uuid.UUID(m.ID)); err != nil {
		return fmt.Errorf("clear blocking keys: %w", err)
	}
	return s.writeBlockingKeys(ctx, exec, m)
}

func (s *PostgresStore) writeBlockingKeys(ctx context.Context, exec txcontext.Executor, m *models.Master) error {
	keys := blocking.AllKeys(m.Record())
	if len(keys) == 0 {
		return nil
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO master_blocking_keys (master_id, blocking_key)
		SELECT $1, k FROM unnest($2::text[]) AS k
		ON CONFLICT DO NOTHING
	`, uuid.UUID(m.ID), pq.Array(keys))
	if err != nil {
		return fmt.Errorf("insert blocking keys: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindMaster(ctx context.Context, masterID id.MasterID) (*models.Master, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+masterColumns+` FROM master_identities WHERE id = $1`, uuid.UUID(masterID))
	m, err := scanMaster(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find master identity: %w", err)
	}
	return m, nil
}

// FindMasterForUpdate reads a master and holds its row lock until the caller's
// transaction ends, so concurrent merges into one master apply in turn.
func (s *PostgresStore) FindMasterForUpdate(ctx context.Context, masterID id.MasterID) (*models.Master, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+masterColumns+` FROM master_identities WHERE id = $1 FOR UPDATE`, uuid.UUID(masterID))
	m, err := scanMaster(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock master identity: %w", err)
	}
	return m, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListMasters returns masters ordered by name whose name contains nameQuery,
// ignoring case. An empty query lists everyone.
func (s *PostgresStore) ListMasters(ctx context.Context, nameQuery string, limit int) ([]*models.Master, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+masterColumns+` FROM master_identities
		WHERE $1 = '' OR full_name ILIKE '%' || $1 || '%'
		ORDER BY full_name, id
		LIMIT $2
	`, likeEscaper.Replace(nameQuery), limit)
	if err != nil {
		return nil, fmt.Errorf("list master identities: %w", err)
	}
	defer rows.Close()

	var out []*models.Master
	for rows.Next() {
		m, err := scanMaster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan master identity: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindMasters(ctx context.Context, ids []id.MasterID) ([]*models.Master, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strs := make([]string, len(ids))
	for i, masterID := range ids {
		strs[i] = masterID.String()
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+masterColumns+` FROM master_identities WHERE id = ANY($1::uuid[])
	`, pq.Array(strs))
	if err != nil {
		return nil, fmt.Errorf("find master identities: %w", err)
	}
	defer rows.Close()

	var out []*models.Master
	for rows.Next() {
		m, err := scanMaster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan master identity: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) BlockMembers(ctx context.Context, key string, limit int) ([]id.MasterID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT master_id FROM master_blocking_keys
		WHERE blocking_key = $1
		ORDER BY master_id
		LIMIT $2
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list block members: %w", err)
	}
	defer rows.Close()

	var out []id.MasterID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan block member: %w", err)
		}
		out = append(out, id.MasterID(u))
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaster(row rowScanner) (*models.Master, error) {
	var (
		m                        models.Master
		masterID, sourceID       uuid.UUID
		birthDate, region, phone sql.NullString
		email, address           sql.NullString
	)
	err := row.Scan(&masterID, &m.FullName, &birthDate, &region, &phone, &email, &address,
		&m.Verified, &sourceID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ID = id.MasterID(masterID)
	m.SourceSubmissionID = id.SubmissionID(sourceID)
	m.BirthDate = birthDate.String
	m.Region = region.String
	m.Phone = phone.String
	m.Email = email.String
	m.Address = address.String
	return &m, nil
}

const submissionColumns = `
	id, payload, status, submitted_by, submitted_at,
	resolved_at, resolved_by, resolved_master_id, scoring_run
`

func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *models.Submission) error {
	payload, err := json.Marshal(sub.Payload)
	if err != nil {
		return fmt.Errorf("marshal submission payload: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO quarantined_submissions (id, payload, status, submitted_by, submitted_at, scoring_run)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(sub.ID), payload, string(sub.Status), sub.SubmittedBy, sub.SubmittedAt, sub.ScoringRun)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindSubmission(ctx context.Context, submissionID id.SubmissionID) (*models.Submission, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM quarantined_submissions WHERE id = $1`, uuid.UUID(submissionID))
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find submission: %w", err)
	}
	return sub, nil
}

// TransitionSubmission applies a terminal status with a conditional update, so
// exactly one concurrent resolution can move a pending submission.
func (s *PostgresStore) TransitionSubmission(ctx context.Context, sub *models.Submission) error {
	var masterID any
	if sub.ResolvedMasterID != nil {
		masterID = uuid.UUID(*sub.ResolvedMasterID)
	}
	exec := s.execer(ctx)
	res, err := exec.ExecContext(ctx, `
		UPDATE quarantined_submissions
		SET status = $2, resolved_at = $3, resolved_by = $4, resolved_master_id = $5
		WHERE id = $1 AND status = 'pending'
	`, uuid.UUID(sub.ID), string(sub.Status), sub.ResolvedAt, sub.ResolvedBy, masterID)
	if err != nil {
		return fmt.Errorf("transition submission: %w", err)
	}
	return s.requireOneRow(ctx, exec, res, sub.ID)
}

func (s *PostgresStore) AdvanceScoringRun(ctx context.Context, submissionID id.SubmissionID, from int) error {
	exec := s.execer(ctx)
	res, err := exec.ExecContext(ctx, `
		UPDATE quarantined_submissions
		SET scoring_run = scoring_run + 1
		WHERE id = $1 AND status = 'pending' AND scoring_run = $2
	`, uuid.UUID(submissionID), from)
	if err != nil {
		return fmt.Errorf("advance scoring run: %w", err)
	}
	return s.requireOneRow(ctx, exec, res, submissionID)
}

// requireOneRow distinguishes a missing submission from a lost race.
func (s *PostgresStore) requireOneRow(ctx context.Context, exec txcontext.Executor, res sql.Result, submissionID id.SubmissionID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	err = exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM quarantined_submissions WHERE id = $1)`, uuid.UUID(submissionID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check submission: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func scanSubmission(row rowScanner) (*models.Submission, error) {
	var (
		sub        models.Submission
		subID      uuid.UUID
		payload    []byte
		status     string
		resolvedAt sql.NullTime
		resolvedBy sql.NullString
		resolvedTo uuid.NullUUID
	)
	err := row.Scan(&subID, &payload, &status, &sub.SubmittedBy, &sub.SubmittedAt,
		&resolvedAt, &resolvedBy, &resolvedTo, &sub.ScoringRun)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &sub.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal submission payload: %w", err)
	}
	sub.ID = id.SubmissionID(subID)
	sub.Status = models.Status(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		sub.ResolvedAt = &t
	}
	sub.ResolvedBy = resolvedBy.String
	if resolvedTo.Valid {
		m := id.MasterID(resolvedTo.UUID)
		sub.ResolvedMasterID = &m
	}
	return &sub, nil
}

const candidateColumns = `
	id, submission_id, master_id, score, classification,
	scoring_run, calibration_version, contributions, created_at
`

func (s *PostgresStore) CreateCandidates(ctx context.Context, cs []*models.Candidate) error {
	exec := s.execer(ctx)
	for _, c := range cs {
		contributions, err := json.Marshal(c.Contributions)
		if err != nil {
			return fmt.Errorf("marshal contributions: %w", err)
		}
		_, err = exec.ExecContext(ctx, `
			INSERT INTO match_candidates (`+candidateColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			uuid.UUID(c.ID), uuid.UUID(c.SubmissionID), uuid.UUID(c.MasterID), c.Score,
			string(c.Classification), c.ScoringRun, c.CalibrationVersion, contributions, c.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("insert match candidate: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) FindCandidate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM match_candidates WHERE id = $1`, uuid.UUID(candidateID))
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find match candidate: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCandidates(ctx context.Context, submissionID id.SubmissionID, run int) ([]*models.Candidate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+candidateColumns+` FROM match_candidates
		WHERE submission_id = $1 AND scoring_run = $2
		ORDER BY score DESC, master_id
	`, uuid.UUID(submissionID), run)
	if err != nil {
		return nil, fmt.Errorf("list match candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountReview returns the size of the whole review queue.
func (s *PostgresStore) CountReview(ctx context.Context) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM match_candidates c
		JOIN quarantined_submissions q ON q.id = c.submission_id
		WHERE q.status = 'pending'
			AND c.scoring_run = q.scoring_run
			AND c.classification = $1
	`, string(scoring.Possible)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count review queue: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListReview(ctx context.Context, limit int) ([]models.ReviewItem, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT c.id, c.submission_id, c.master_id, c.score, c.classification,
			c.scoring_run, c.calibration_version, c.contributions, c.created_at
		FROM match_candidates c
		JOIN quarantined_submissions q ON q.id = c.submission_id
		WHERE q.status = 'pending'
			AND c.scoring_run = q.scoring_run
			AND c.classification = $1
		ORDER BY c.score DESC, c.master_id
		LIMIT $2
	`, string(scoring.Possible), limit)
	if err != nil {
		return nil, fmt.Errorf("list review queue: %w", err)
	}
	var candidates []*models.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan review candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.ReviewItem, 0, len(candidates))
	for _, c := range candidates {
		sub, err := s.FindSubmission(ctx, c.SubmissionID)
		if err != nil {
			return nil, err
		}
		item := models.ReviewItem{Candidate: c, Submission: sub}
		if m, err := s.FindMaster(ctx, c.MasterID); err == nil {
			item.Master = m
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var (
		c                       models.Candidate
		candID, subID, masterID uuid.UUID
		classification          string
		contributions           []byte
		createdAt               time.Time
	)
	err := row.Scan(&candID, &subID, &masterID, &c.Score, &classification,
		&c.ScoringRun, &c.CalibrationVersion, &contributions, &createdAt)
	if err != nil {
		return nil, err
	}
	if len(contributions) > 0 {
		if err := json.Unmarshal(contributions, &c.Contributions); err != nil {
			return nil, fmt.Errorf("unmarshal contributions: %w", err)
		}
	}
	c.ID = id.CandidateID(candID)
	c.SubmissionID = id.SubmissionID(subID)
	c.MasterID = id.MasterID(masterID)
	c.Classification = scoring.Classification(classification)
	c.CreatedAt = createdAt
	return &c, nil
}

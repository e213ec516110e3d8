package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/target/marketpulse/internal/core"
	"github.com/target/marketpulse/internal/data/pgxutil"
	"github.com/target/marketpulse/internal/domain/model"
	apperrors "github.com/target/marketpulse/internal/errors"
)

// sqlDialect captures what differs between the Postgres and SQLite schemas.
type sqlDialect struct {
	name string
	// numbered placeholders ($1) instead of ?
	numbered bool
	// row locks inside Mutate; SQLite serializes writers through its single connection.
	forUpdate bool
	// timestamps as unix nanoseconds rather than native timestamptz.
	unixTime bool
}

var (
	postgresDialect = sqlDialect{name: "postgres", numbered: true, forUpdate: true}
	sqliteDialect   = sqlDialect{name: "sqlite", unixTime: true}
)

// SQLJobStore implements core.JobStore on database/sql.
type SQLJobStore struct {
	DB      *sql.DB
	dialect sqlDialect
	logger  *slog.Logger
}

var _ core.JobStore = (*SQLJobStore)(nil)

// NewPostgresJobStore returns a store backed by the pgx stdlib driver.
func NewPostgresJobStore(db *sql.DB, logger *slog.Logger) *SQLJobStore {
	return newSQLJobStore(db, postgresDialect, logger)
}

// NewSQLiteJobStore returns a store backed by modernc.org/sqlite. The pool must
// be limited to one open connection.
func NewSQLiteJobStore(db *sql.DB, logger *slog.Logger) *SQLJobStore {
	return newSQLJobStore(db, sqliteDialect, logger)
}

func newSQLJobStore(db *sql.DB, d sqlDialect, logger *slog.Logger) *SQLJobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLJobStore{DB: db, dialect: d, logger: logger.With("component", "job_store", "driver", d.name)}
}

const jobColumns = `id, kind, owner, status, progress, messages, input, result, error, error_code, created_at, updated_at, finished_at`

// Create inserts a new record.
func (s *SQLJobStore) Create(ctx context.Context, rec *model.JobRecord) error {
	if rec == nil || rec.ID == "" {
		return ErrJobIDRequired
	}
	row, err := s.encode(rec)
	if err != nil {
		return err
	}

	q := s.bind(`INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	args := append([]any{rec.ID, string(rec.Kind), rec.Owner}, row...)
	args = append(args, s.timeArg(rec.CreatedAt), s.timeArg(rec.UpdatedAt), s.nullTimeArg(rec.FinishedAt))
	if _, err := s.DB.ExecContext(ctx, q, args...); err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsConflict(mapped) || isSQLiteConstraint(err) {
			return fmt.Errorf("create job %s: %w", rec.ID, ErrJobExists)
		}
		return fmt.Errorf("create job %s: %w", rec.ID, mapped)
	}
	return nil
}

// Get loads a record by id.
func (s *SQLJobStore) Get(ctx context.Context, id string) (*model.JobRecord, error) {
	q := s.bind(`SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`)
	rec, err := s.scan(s.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, apperrors.MapDBError(err))
	}
	return rec, nil
}

// Mutate reads, edits and writes the record inside one transaction.
func (s *SQLJobStore) Mutate(ctx context.Context, id string, fn core.MutateFunc) (*model.JobRecord, error) {
	var out *model.JobRecord
	err := pgxutil.WithSQLTx(ctx, s.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
			if s.dialect.forUpdate {
				q += ` FOR UPDATE`
			}
			rec, err := s.scan(tx.QueryRowContext(ctx, s.bind(q), id))
			if errors.Is(err, sql.ErrNoRows) {
				return model.ErrJobNotFound
			}
			if err != nil {
				return fmt.Errorf("load job %s: %w", id, apperrors.MapDBError(err))
			}

			if err := fn(rec); err != nil {
				return err
			}

			row, err := s.encode(rec)
			if err != nil {
				return err
			}
			update := s.bind(`UPDATE jobs SET status = ?, progress = ?, messages = ?, input = ?, result = ?,
				error = ?, error_code = ?, updated_at = ?, finished_at = ? WHERE id = ?`)
			args := append(row, s.timeArg(rec.UpdatedAt), s.nullTimeArg(rec.FinishedAt), id)
			if _, err := tx.ExecContext(ctx, update, args...); err != nil {
				return fmt.Errorf("update job %s: %w", id, apperrors.MapDBError(err))
			}
			out = rec
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns matching records newest first and the total match count.
func (s *SQLJobStore) List(ctx context.Context, filter model.JobListFilter) ([]*model.JobRecord, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Owner != "" {
		where, args = append(where, "owner = ?"), append(args, filter.Owner)
	}
	if filter.Kind != "" {
		where, args = append(where, "kind = ?"), append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		where, args = append(where, "status = ?"), append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		where, args = append(where, "created_at >= ?"), append(args, s.timeArg(filter.Since))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, s.bind(`SELECT COUNT(*) FROM jobs`+clause), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", apperrors.MapDBError(err))
	}

	q := `SELECT ` + jobColumns + ` FROM jobs` + clause + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		q += ` LIMIT ` + strconv.Itoa(filter.Limit)
		if filter.Offset > 0 {
			q += ` OFFSET ` + strconv.Itoa(filter.Offset)
		}
	}
	recs, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

// ListStale returns non-terminal records last updated before the cutoff.
func (s *SQLJobStore) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.JobRecord, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status NOT IN ('completed', 'failed') AND updated_at < ?
		ORDER BY updated_at ASC LIMIT ` + strconv.Itoa(max(limit, 1))
	return s.query(ctx, q, s.timeArg(before))
}

// ListFinished returns records in a terminal status finished before the cutoff.
func (s *SQLJobStore) ListFinished(ctx context.Context, params core.ListFinishedParams) ([]*model.JobRecord, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = ? AND finished_at IS NOT NULL AND finished_at < ?
		ORDER BY finished_at ASC LIMIT ` + strconv.Itoa(max(params.Limit, 1))
	return s.query(ctx, q, string(params.Status), s.timeArg(params.Before))
}

// Delete removes records by id.
func (s *SQLJobStore) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.DB.ExecContext(ctx, s.bind(`DELETE FROM jobs WHERE id IN (`+marks+`)`), args...)
	if err != nil {
		return 0, fmt.Errorf("delete jobs: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *SQLJobStore) query(ctx context.Context, q string, args ...any) ([]*model.JobRecord, error) {
	rows, err := s.DB.QueryContext(ctx, s.bind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", apperrors.MapDBError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.WarnContext(ctx, "close job rows", "error", cerr)
		}
	}()

	var out []*model.JobRecord
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLJobStore) scan(row rowScanner) (*model.JobRecord, error) {
	var (
		rec                         model.JobRecord
		kind, status                string
		messages                    string
		input, result, errMsg, code sql.NullString
		created, updated            timeValue
		finished                    timeValue
	)
	if err := row.Scan(&rec.ID, &kind, &rec.Owner, &status, &rec.Progress, &messages, &input, &result,
		&errMsg, &code, &created, &updated, &finished); err != nil {
		return nil, err
	}

	rec.Kind = model.JobKind(kind)
	rec.Status = model.JobStatus(status)
	rec.Error = errMsg.String
	rec.ErrorCode = model.FailureReason(code.String)
	rec.CreatedAt = created.t
	rec.UpdatedAt = updated.t
	if finished.valid {
		ft := finished.t
		rec.FinishedAt = &ft
	}
	if err := json.Unmarshal([]byte(messages), &rec.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of job %s: %w", rec.ID, err)
	}
	if rec.Messages == nil {
		rec.Messages = []model.Message{}
	}
	if input.Valid && input.String != "" {
		rec.Input = json.RawMessage(input.String)
	}
	if result.Valid && result.String != "" {
		var ref model.ResultRef
		if err := json.Unmarshal([]byte(result.String), &ref); err != nil {
			return nil, fmt.Errorf("decode result of job %s: %w", rec.ID, err)
		}
		rec.Result = &ref
	}
	return &rec, nil
}

// encode renders the mutable columns in UPDATE order: status, progress,
// messages, input, result, error, error_code.
func (s *SQLJobStore) encode(rec *model.JobRecord) ([]any, error) {
	msgs := rec.Messages
	if msgs == nil {
		msgs = []model.Message{}
	}
	messages, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	var result any
	if rec.Result != nil {
		b, err := json.Marshal(rec.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		result = string(b)
	}
	var input any
	if len(rec.Input) > 0 {
		input = string(rec.Input)
	}
	return []any{
		string(rec.Status),
		rec.Progress,
		string(messages),
		input,
		result,
		nullString(rec.Error),
		nullString(string(rec.ErrorCode)),
	}, nil
}

// bind rewrites ? placeholders to $n for Postgres.
func (s *SQLJobStore) bind(q string) string {
	if !s.dialect.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLJobStore) timeArg(t time.Time) any {
	if s.dialect.unixTime {
		return t.UTC().UnixNano()
	}
	return t.UTC()
}

func (s *SQLJobStore) nullTimeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return s.timeArg(*t)
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// timeValue scans either native timestamps or unix nanoseconds.
type timeValue struct {
	t     time.Time
	valid bool
}

func (v *timeValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		*v = timeValue{}
	case time.Time:
		*v = timeValue{t: x.UTC(), valid: true}
	case int64:
		*v = timeValue{t: time.Unix(0, x).UTC(), valid: true}
	case string:
		t, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return fmt.Errorf("parse time %q: %w", x, err)
		}
		*v = timeValue{t: t.UTC(), valid: true}
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
	return nil
}

func isSQLiteConstraint(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

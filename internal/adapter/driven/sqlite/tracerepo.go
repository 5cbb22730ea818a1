package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TraceStore = (*TraceRepo)(nil)

// TraceRepo is the SQLite implementation of the TraceStore port interface.
type TraceRepo struct {
	db *DB
}

// NewTraceRepo creates a new TraceRepo backed by the given DB.
func NewTraceRepo(db *DB) *TraceRepo {
	return &TraceRepo{db: db}
}

// Insert stores a pending trace. Headers and params are stored as JSON objects.
func (r *TraceRepo) Insert(ctx context.Context, trace model.Trace) error {
	headers, err := marshalMap(trace.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers for trace %q: %w", trace.ID, err)
	}
	params, err := marshalMap(trace.Params)
	if err != nil {
		return fmt.Errorf("marshal params for trace %q: %w", trace.ID, err)
	}

	const query = `
		INSERT INTO traces (id, endpoint_id, credential_id, method, url, headers, payload, params,
			status_code, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL)`

	_, err = r.db.Writer.ExecContext(ctx, query,
		trace.ID,
		trace.EndpointID,
		nullString(trace.CredentialID),
		string(trace.Method),
		trace.URL,
		headers,
		trace.Payload,
		params,
		formatTime(trace.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert trace %q: %w", trace.ID, err)
	}

	return nil
}

// Complete finalizes a pending trace. Completing an already completed trace
// is rejected so the record stays immutable once written.
func (r *TraceRepo) Complete(ctx context.Context, id string, statusCode *int, completedAt time.Time) error {
	const query = `
		UPDATE traces SET status_code = ?, completed_at = ?
		WHERE id = ? AND completed_at IS NULL`

	var status any
	if statusCode != nil {
		status = *statusCode
	}

	result, err := r.db.Writer.ExecContext(ctx, query, status, formatTime(completedAt), id)
	if err != nil {
		return fmt.Errorf("complete trace %q: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("complete trace %q: already completed", id)
	}

	return nil
}

// Get retrieves a trace by ID.
func (r *TraceRepo) Get(ctx context.Context, id string) (*model.Trace, error) {
	const query = traceColumns + ` WHERE id = ?`

	trace, err := scanTrace(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &model.NotFoundError{Resource: "trace", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get trace %q: %w", id, err)
	}

	return trace, nil
}

// ListByEndpoint returns all traces of an endpoint, oldest first.
func (r *TraceRepo) ListByEndpoint(ctx context.Context, endpointID string) ([]model.Trace, error) {
	const query = traceColumns + ` WHERE endpoint_id = ? ORDER BY started_at`

	rows, err := r.db.Reader.QueryContext(ctx, query, endpointID)
	if err != nil {
		return nil, fmt.Errorf("list traces for endpoint %q: %w", endpointID, err)
	}
	defer rows.Close()

	traces := []model.Trace{}
	for rows.Next() {
		trace, err := scanTrace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		traces = append(traces, *trace)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate traces: %w", err)
	}

	return traces, nil
}

// CountPending counts unfinished traces that started before startedBefore.
// Old pending traces mean a worker died mid-call.
func (r *TraceRepo) CountPending(ctx context.Context, startedBefore time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM traces WHERE completed_at IS NULL AND started_at < ?`

	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, formatTime(startedBefore)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending traces: %w", err)
	}
	return n, nil
}

const traceColumns = `
	SELECT id, endpoint_id, credential_id, method, url, headers, payload, params,
		status_code, started_at, completed_at
	FROM traces`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrace(row rowScanner) (*model.Trace, error) {
	var (
		trace           model.Trace
		credentialID    sql.NullString
		method          string
		headers, params string
		statusCode      sql.NullInt64
		startedAt       string
		completedAt     sql.NullString
	)

	if err := row.Scan(
		&trace.ID,
		&trace.EndpointID,
		&credentialID,
		&method,
		&trace.URL,
		&headers,
		&trace.Payload,
		&params,
		&statusCode,
		&startedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	trace.CredentialID = credentialID.String
	trace.Method = model.HTTPMethod(method)

	if err := json.Unmarshal([]byte(headers), &trace.Headers); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &trace.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}

	if statusCode.Valid {
		code := int(statusCode.Int64)
		trace.StatusCode = &code
	}

	var err error
	if trace.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if trace.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}

	return &trace, nil
}

func marshalMap(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

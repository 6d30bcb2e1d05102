package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/lora-locator/internal/ttn"
)

// ErrNoData indicates that no uplink exists for the given parameters.
var ErrNoData = errors.New("no data available")

// UplinkReader provides an iterator-based interface for reading recorded
// uplinks with optional time filtering.
type UplinkReader interface {
	// Session returns metadata about the recording this reader is accessing.
	Session() *Session

	// Next advances the iterator and returns true if there is another uplink
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current uplink in the iteration.
	Current() ttn.Uplink

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures an UplinkReader with specific filtering criteria.
type ReaderOption func(*SqliteUplinkReader)

// WithStartTime excludes uplinks received before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteUplinkReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes uplinks received after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteUplinkReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteUplinkReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

// WithReaderDecoder sets the decoder applied to recorded messages.
func WithReaderDecoder(d ttn.Decoder) ReaderOption {
	return func(r *SqliteUplinkReader) {
		r.decoder = d
	}
}

// SqliteUplinkReader implements UplinkReader for SQLite database backend.
type SqliteUplinkReader struct {
	db *sql.DB

	sessionID int64
	session   *Session
	decoder   ttn.Decoder

	startTime *time.Time // Optional start of time range filter
	endTime   *time.Time // Optional end of time range filter

	current ttn.Uplink
	rows    *sql.Rows
	err     error
}

func newSqliteUplinkReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteUplinkReader, error) {
	ur := &SqliteUplinkReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(ur)
	}
	if err := ur.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return ur, nil
}

func (ur *SqliteUplinkReader) init(ctx context.Context) error {
	if ur.db == nil {
		return errors.New("database connection required")
	}
	if ur.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: ur.loadSession},
		{msg: "initializing filters", fn: ur.initFilters},
		{msg: "initializing query", fn: ur.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (ur *SqliteUplinkReader) loadSession(ctx context.Context) (err error) {
	stmt, err := ur.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if ur.session, err = scanSession(stmt.QueryRowContext(ctx, ur.sessionID)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session %d: %w", ur.sessionID, ErrNoData)
		}
		return fmt.Errorf("querying session: %w", err)
	}
	return nil
}

func (ur *SqliteUplinkReader) initFilters(context.Context) error {
	if ur.startTime != nil && ur.endTime != nil && ur.startTime.After(*ur.endTime) {
		return fmt.Errorf("start time %s is after end time %s", ur.startTime, ur.endTime)
	}
	return nil
}

func (ur *SqliteUplinkReader) initQuery(ctx context.Context) (err error) {
	start, end := int64(math.MinInt64), int64(math.MaxInt64)
	if ur.startTime != nil {
		start = toUnixNano(*ur.startTime)
	}
	if ur.endTime != nil {
		end = toUnixNano(*ur.endTime)
	}

	if ur.rows, err = ur.db.QueryContext(ctx, selectUplinksSQL, ur.sessionID, start, end); err != nil {
		return fmt.Errorf("querying uplinks: %w", err)
	}
	return nil
}

func (ur *SqliteUplinkReader) Session() *Session {
	return ur.session
}

func (ur *SqliteUplinkReader) Next(ctx context.Context) bool {
	if ur.err != nil || ur.rows == nil {
		return false
	}

	for {
		select {
		case <-ctx.Done():
			ur.err = ctx.Err()
			return false
		default:
		}

		if !ur.rows.Next() {
			return false
		}

		var message string
		if ur.err = ur.rows.Scan(&message); ur.err != nil {
			ur.err = fmt.Errorf("scanning uplink: %w", ur.err)
			return false
		}

		u, ok, err := ur.decoder.Decode([]byte(message))
		if err != nil {
			ur.err = err
			return false
		}
		if !ok {
			continue
		}

		ur.current = u
		return true
	}
}

func (ur *SqliteUplinkReader) Current() ttn.Uplink {
	return ur.current
}

func (ur *SqliteUplinkReader) Error() error {
	if ur.err != nil {
		return ur.err
	}
	if ur.rows != nil {
		return ur.rows.Err()
	}
	return nil
}

func (ur *SqliteUplinkReader) Close() error {
	if ur.rows != nil {
		err := ur.rows.Close()
		ur.rows = nil
		return err
	}
	return nil
}

// LoadUplinks reads every uplink of a session matching opts, oldest first.
// ErrNoData is returned when nothing matches.
func LoadUplinks(ctx context.Context, store Store, sessionID int64, opts ...ReaderOption) (uplinks []ttn.Uplink, err error) {
	reader, err := store.ReadUplinks(ctx, sessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer closeWithError(reader, &err)

	for reader.Next(ctx) {
		uplinks = append(uplinks, reader.Current())
	}
	if err = reader.Error(); err != nil {
		return nil, fmt.Errorf("reading uplinks: %w", err)
	}
	if len(uplinks) == 0 {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNoData)
	}
	return uplinks, nil
}

package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/lora-locator/internal/ttn"
)

// Store provides an interface for managing recorded uplink sessions.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession starts a new recording and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - source: Where the uplinks come from (e.g., "ttn-storage", "mqtt")
	//   - description: Free text shown when listing sessions
	//   - config: Optional recording configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, source, description string, config any) (sessionID int64, err error)

	// Session retrieves a specific recording session by its ID.
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all recording sessions ordered by start time.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreUplinks saves uplinks and their gateway receptions in a single
	// transaction. Uplinks already recorded for the session are ignored.
	StoreUplinks(ctx context.Context, sessionID int64, uplinks []ttn.Uplink) (stored int, err error)

	// ReadUplinks creates a reader over the uplinks of a session, oldest first.
	ReadUplinks(ctx context.Context, sessionID int64, opts ...ReaderOption) (UplinkReader, error)

	// GatewayStats returns per-gateway reception statistics of a session.
	GatewayStats(ctx context.Context, sessionID int64) ([]GatewayStat, error)

	// Close releases all database connections and resources.
	// It is safe to call Close multiple times.
	Close() error
}

var _ Store = (*SqliteStore)(nil)

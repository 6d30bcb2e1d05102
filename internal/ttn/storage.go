package ttn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	OrderOldestFirst = "received_at"
	OrderNewestFirst = "-received_at"

	defaultTimeout = 10 * time.Second
)

// ErrUnexpectedStatus is returned when TTN answers with a non-success status code.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// StatusError carries the status code of a failed TTN request.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d", ErrUnexpectedStatus, e.Code)
	}
	return fmt.Sprintf("%s: %d: %s", ErrUnexpectedStatus, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// retryable reports whether a status code is worth another attempt.
func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Query selects stored uplinks. Zero fields are omitted from the request.
type Query struct {
	Limit  int
	After  time.Time
	Before time.Time
	Last   time.Duration
	Order  string
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.After.IsZero() {
		v.Set("after", q.After.UTC().Format(time.RFC3339Nano))
	}
	if !q.Before.IsZero() {
		v.Set("before", q.Before.UTC().Format(time.RFC3339Nano))
	}
	if q.Last > 0 {
		v.Set("last", q.Last.String())
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	return v
}

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(client *http.Client) func(c *StorageClient) {
	return func(c *StorageClient) {
		c.client = client
	}
}

// WithRetry sets the retry policy
func WithRetry(config RetryConfig) func(c *StorageClient) {
	return func(c *StorageClient) {
		c.retry = newRetrier(config)
	}
}

// WithDecoder sets the uplink decoder
func WithDecoder(d Decoder) func(c *StorageClient) {
	return func(c *StorageClient) {
		c.decoder = d
	}
}

// WithStorageLogger sets the logger for the client
func WithStorageLogger(logger *slog.Logger) func(c *StorageClient) {
	return func(c *StorageClient) {
		c.logger = logger.With(slog.String("component", "ttn-storage"))
	}
}

// StorageClient reads uplinks from the TTN storage integration.
type StorageClient struct {
	endpoint string
	apiKey   string

	client  *http.Client
	retry   *retrier
	decoder Decoder
	logger  *slog.Logger
}

// NewStorageClient creates a client for the storage integration endpoint,
// e.g. https://eu1.cloud.thethings.network/api/v3/as/applications/<app>/packages/storage/uplink_message
func NewStorageClient(endpoint, apiKey string, options ...func(c *StorageClient)) *StorageClient {
	c := StorageClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: defaultTimeout},
		retry:    newRetrier(DefaultRetryConfig()),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Fetch returns the stored uplinks matching q, in the order TTN returns them.
func (c *StorageClient) Fetch(ctx context.Context, q Query) ([]Uplink, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	u.RawQuery = q.values().Encode()

	var uplinks []Uplink
	err = c.retry.do(ctx, func(ctx context.Context) error {
		var fErr error
		uplinks, fErr = c.fetch(ctx, u.String())
		return fErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching uplinks: %w", err)
	}

	c.logger.Debug("fetched uplinks", slog.String("count", humanize.Comma(int64(len(uplinks)))))
	return uplinks, nil
}

func (c *StorageClient) fetch(ctx context.Context, u string) (uplinks []Uplink, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeWithError(resp.Body, &err)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		sErr := &StatusError{Code: resp.StatusCode, Body: string(body)}
		if retryable(resp.StatusCode) {
			return nil, sErr
		}
		return nil, permanent(sErr)
	}

	uplinks, err = c.decoder.DecodeStream(resp.Body)
	if err != nil {
		return nil, permanent(err)
	}
	return uplinks, nil
}

// All returns every stored uplink, oldest first.
func (c *StorageClient) All(ctx context.Context) ([]Uplink, error) {
	return c.Fetch(ctx, Query{Order: OrderOldestFirst})
}

// Latest returns the n most recent uplinks, oldest first.
func (c *StorageClient) Latest(ctx context.Context, n int) ([]Uplink, error) {
	uplinks, err := c.Fetch(ctx, Query{Limit: n, Order: OrderNewestFirst})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(uplinks, func(a, b Uplink) int {
		return a.ReceivedAt.Compare(b.ReceivedAt)
	})
	return uplinks, nil
}

// Range returns the uplinks received within [begin, end], oldest first.
func (c *StorageClient) Range(ctx context.Context, begin, end time.Time) ([]Uplink, error) {
	uplinks, err := c.Fetch(ctx, Query{After: begin, Before: end, Order: OrderOldestFirst})
	if err != nil {
		return nil, err
	}
	return FilterRange(uplinks, begin, end), nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

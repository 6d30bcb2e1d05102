package ttn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const (
	// DownlinkPort is the application port the device firmware listens on.
	DownlinkPort = 1

	PriorityNormal = "NORMAL"
)

var (
	// CommandGPSEnable switches the device GPS on ('E').
	CommandGPSEnable = []byte{0x45}

	// CommandGPSDisable switches the device GPS off ('I').
	CommandGPSDisable = []byte{0x49}
)

type downlinkJSON struct {
	// []byte is base64 encoded by encoding/json, as frm_payload expects.
	FrmPayload []byte `json:"frm_payload"`
	FPort      int    `json:"f_port"`
	Priority   string `json:"priority"`
}

type downlinkRequest struct {
	Downlinks []downlinkJSON `json:"downlinks"`
}

// WithDownlinkHTTPClient sets the HTTP client used for requests
func WithDownlinkHTTPClient(client *http.Client) func(d *Downlinker) {
	return func(d *Downlinker) {
		d.client = client
	}
}

// WithDownlinkRetry sets the retry policy
func WithDownlinkRetry(config RetryConfig) func(d *Downlinker) {
	return func(d *Downlinker) {
		d.retry = newRetrier(config)
	}
}

// WithDownlinkLogger sets the logger for the downlinker
func WithDownlinkLogger(logger *slog.Logger) func(d *Downlinker) {
	return func(d *Downlinker) {
		d.logger = logger.With(slog.String("component", "ttn-downlink"))
	}
}

// Downlinker pushes downlink messages to a fixed set of device webhook URLs.
type Downlinker struct {
	urls   []string
	apiKey string

	client *http.Client
	retry  *retrier
	logger *slog.Logger
}

// NewDownlinker creates a downlinker for the device push URLs, e.g.
// https://eu1.cloud.thethings.network/api/v3/as/applications/<app>/webhooks/<hook>/devices/<dev>/down/push
func NewDownlinker(urls []string, apiKey string, options ...func(d *Downlinker)) *Downlinker {
	d := Downlinker{
		urls:   urls,
		apiKey: apiKey,
		client: &http.Client{Timeout: defaultTimeout},
		retry:  newRetrier(DefaultRetryConfig()),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	return &d
}

// Push sends payload on DownlinkPort to every device. All devices are
// attempted; the returned error joins the individual failures.
func (d *Downlinker) Push(ctx context.Context, payload []byte) error {
	body, err := json.Marshal(downlinkRequest{
		Downlinks: []downlinkJSON{{FrmPayload: payload, FPort: DownlinkPort, Priority: PriorityNormal}},
	})
	if err != nil {
		return fmt.Errorf("marshaling downlink: %w", err)
	}

	var errs []error
	for _, u := range d.urls {
		err = d.retry.do(ctx, func(ctx context.Context) error {
			return d.post(ctx, u, body)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("pushing downlink to '%s': %w", u, err))
			continue
		}
		d.logger.Info("downlink queued", slog.String("url", u))
	}
	return errors.Join(errs...)
}

func (d *Downlinker) post(ctx context.Context, u string, body []byte) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer closeWithError(resp.Body, &err)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		sErr := &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		if retryable(resp.StatusCode) {
			return sErr
		}
		return permanent(sErr)
	}

	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// EnableGPS asks every device to switch its GPS on.
func (d *Downlinker) EnableGPS(ctx context.Context) error {
	return d.Push(ctx, CommandGPSEnable)
}

// DisableGPS asks every device to switch its GPS off.
func (d *Downlinker) DisableGPS(ctx context.Context) error {
	return d.Push(ctx, CommandGPSDisable)
}

// Package locator runs the position estimation loop: it polls the latest
// uplinks, estimates the device position and publishes it to the map server.
package locator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roman-kulish/lora-locator/internal/config"
	"github.com/roman-kulish/lora-locator/internal/fingerprint"
	"github.com/roman-kulish/lora-locator/internal/source"
	"github.com/roman-kulish/lora-locator/internal/ttn"
	"github.com/roman-kulish/lora-locator/internal/web"
)

var (
	ErrNoUplinks     = errors.New("no uplinks available")
	ErrNoReadings    = errors.New("no usable readings in uplinks")
	ErrNoEstimate    = errors.New("classifier produced no estimate")
	ErrNoCoordinates = errors.New("no coordinates for label")
)

// Publisher receives estimated positions.
type Publisher interface {
	Publish(ctx context.Context, p web.Point) error
}

// Estimate is the outcome of one locator step.
type Estimate struct {
	Point web.Point

	// Result is empty when the position came from a GPS fix.
	Result fingerprint.Result
}

func WithLogger(logger *slog.Logger) func(l *Locator) {
	return func(l *Locator) {
		l.logger = logger
	}
}

func WithRegisterer(reg prometheus.Registerer) func(l *Locator) {
	return func(l *Locator) {
		l.registerer = reg
	}
}

// Locator estimates positions from a stream of uplinks.
type Locator struct {
	source     source.Source
	classifier *fingerprint.Classifier
	coords     map[fingerprint.Label]config.Coordinate
	publisher  Publisher
	config     config.LocatorConfig

	registerer prometheus.Registerer
	metrics    *metrics
	logger     *slog.Logger
}

// New creates a locator.
func New(src source.Source, classifier *fingerprint.Classifier, coords map[fingerprint.Label]config.Coordinate,
	publisher Publisher, cfg config.LocatorConfig, options ...func(l *Locator)) *Locator {
	l := &Locator{
		source:     src,
		classifier: classifier,
		coords:     coords,
		publisher:  publisher,
		config:     cfg,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(l)
	}
	if l.registerer == nil {
		l.registerer = prometheus.NewRegistry()
	}
	l.metrics = newMetrics(l.registerer)
	return l
}

// Run performs a step every poll interval until ctx is cancelled or a replay
// source runs out. Step failures are logged and the loop continues.
func (l *Locator) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.config.PollInterval.Std())
	defer ticker.Stop()

	for {
		_, err := l.Step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, source.ErrExhausted):
			l.logger.Info("Replay finished")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			l.logger.Warn("No position estimate", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step estimates the current position from the latest uplinks and
// publishes it. The newest GPS fix among the uplinks takes precedence over
// the fingerprint estimate.
func (l *Locator) Step(ctx context.Context) (Estimate, error) {
	start := time.Now()
	est, err := l.estimate(ctx)
	l.metrics.stepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		l.metrics.failures.WithLabelValues(failureKind(err)).Inc()
		return Estimate{}, err
	}

	if err = l.publisher.Publish(ctx, est.Point); err != nil {
		l.metrics.failures.WithLabelValues("publish").Inc()
		return Estimate{}, fmt.Errorf("publishing point: %w", err)
	}
	l.metrics.estimates.WithLabelValues(est.Point.Origin).Inc()
	return est, nil
}

func (l *Locator) estimate(ctx context.Context) (Estimate, error) {
	uplinks, err := l.source.Latest(ctx, l.config.Messages)
	if err != nil {
		return Estimate{}, fmt.Errorf("reading uplinks: %w", err)
	}
	if len(uplinks) == 0 {
		return Estimate{}, ErrNoUplinks
	}
	newest := uplinks[len(uplinks)-1]

	for i := len(uplinks) - 1; i >= 0; i-- {
		if fix, ok := uplinks[i].Payload.(ttn.GPSFix); ok {
			l.logger.Info("Using GPS fix",
				slog.Float64("latitude", fix.Latitude),
				slog.Float64("longitude", fix.Longitude),
				slog.Time("received_at", uplinks[i].ReceivedAt))
			return Estimate{Point: web.Point{
				Latitude:  fix.Latitude,
				Longitude: fix.Longitude,
				Origin:    web.OriginGPS,
				Time:      uplinks[i].ReceivedAt,
			}}, nil
		}
	}

	obs := fingerprint.Aggregate(ttn.Readings(uplinks))
	if l.config.IgnoreUnknownGateways {
		var dropped []string
		obs, dropped = obs.Restrict(l.classifier.Params().Gateways)
		if len(dropped) > 0 {
			l.logger.Warn("Ignoring unknown gateways", slog.Any("gateways", dropped))
		}
	}
	if obs.Empty() {
		return Estimate{}, fmt.Errorf("%w: %d uplinks", ErrNoReadings, len(uplinks))
	}

	var used *fingerprint.ChannelMask
	if l.config.ChannelAware {
		if r, ok := ttn.ReadingOf(newest.Payload); ok {
			used = r.UsedChannels
		}
		if used == nil {
			l.logger.Debug("Latest uplink carries no channel mask")
		}
	}

	res, err := l.classifier.Classify(obs, used)
	if err != nil {
		return Estimate{}, fmt.Errorf("classifying: %w", err)
	}
	if res.Empty() {
		return Estimate{}, ErrNoEstimate
	}

	attrs := make([]any, 0, len(res.Scores))
	for _, s := range res.Ranked() {
		attrs = append(attrs, slog.Float64(s.Label.String(), s.Error))
	}
	l.logger.Debug("Classification scores", slog.Group("scores", attrs...))
	l.metrics.score.Set(res.Scores[res.Label])

	coord, ok := l.coords[res.Label]
	if !ok {
		return Estimate{}, fmt.Errorf("%w '%s'", ErrNoCoordinates, res.Label)
	}

	l.logger.Info("Estimated position",
		slog.String("label", res.Label.String()),
		slog.Float64("score", res.Scores[res.Label]),
		slog.Int("uplinks", len(uplinks)))

	return Estimate{
		Point: web.Point{
			Latitude:  coord.Latitude,
			Longitude: coord.Longitude,
			Label:     res.Label.String(),
			Origin:    web.OriginFingerprint,
			Time:      newest.ReceivedAt,
		},
		Result: res,
	}, nil
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrNoUplinks), errors.Is(err, ErrNoReadings):
		return "no_data"
	case errors.Is(err, ErrNoEstimate):
		return "no_estimate"
	case errors.Is(err, ErrNoCoordinates):
		return "no_coordinates"
	case errors.Is(err, fingerprint.ErrUnknownGateway):
		return "unknown_gateway"
	default:
		return "source"
	}
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tash-comp/rain-app/internal/models"
	"github.com/tash-comp/rain-app/internal/monitor"
	"github.com/tash-comp/rain-app/internal/observability"
)

// Sink delivers a rain alert to the user by some channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, alert models.RainAlert) error
}

// Title is the notification headline, naming the forecast condition when one is known.
func Title(alert models.RainAlert) string {
	if alert.WeatherCode == "" {
		return "🌧️ Rain Coming Soon!"
	}
	return "🌧️ Rain Coming Soon: " + alert.WeatherCode
}

// Body is the notification text with the expected precipitation to one decimal.
func Body(alert models.RainAlert) string {
	return fmt.Sprintf("It will rain in the next 15 minutes. Expected precipitation: %.1f mm", alert.PrecipitationMM)
}

// Dispatcher fans each alert out to every sink concurrently. A failing sink does not stop the others.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
}

// NewDispatcher returns a Dispatcher. timeout bounds each delivery round; 0 disables it.
func NewDispatcher(sinks []Sink, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "notify")),
	}
}

// Dispatch delivers alert to all sinks and returns the joined delivery errors, if any.
func (d *Dispatcher) Dispatch(ctx context.Context, alert models.RainAlert) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, sink := range d.sinks {
		sink := sink
		g.Go(func() error {
			err := sink.Deliver(ctx, alert)
			if err != nil {
				observability.AlertDeliveriesTotal.WithLabelValues(sink.Name(), "error").Inc()
				d.logger.Warn("alert delivery failed",
					zap.String("sink", sink.Name()),
					zap.String("alert_id", alert.ID),
					zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
				mu.Unlock()
				return nil
			}
			observability.AlertDeliveriesTotal.WithLabelValues(sink.Name(), "success").Inc()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Run consumes monitor events until the channel closes or ctx is done, dispatching every alert.
func (d *Dispatcher) Run(ctx context.Context, events <-chan monitor.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case monitor.EventRainAlert:
				_ = d.Dispatch(ctx, *ev.Alert)
			case monitor.EventWeatherUpdate:
				d.logger.Debug("weather update",
					zap.Bool("raining", ev.Update.Snapshot.Raining),
					zap.String("weather_code", ev.Update.Snapshot.WeatherCode),
					zap.Float64("precipitation_mm", ev.Update.Snapshot.PrecipitationMM))
			}
		}
	}
}

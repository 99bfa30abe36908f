package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/tash-comp/rain-app/internal/client"
	"github.com/tash-comp/rain-app/internal/location"
	"github.com/tash-comp/rain-app/internal/models"
	"github.com/tash-comp/rain-app/internal/observability"
)

// DefaultInterval is how often an active monitor checks for rain.
const DefaultInterval = 900 * time.Second

// ErrInvalidInterval is returned by Start when the configured interval is not positive.
var ErrInvalidInterval = errors.New("monitor interval must be positive")

// ErrClosed is returned by Start once Shutdown has been called.
var ErrClosed = errors.New("monitor is shut down")

// Monitor polls a location source and a weather client and publishes a RainAlert once per
// transition into the raining state.
//
// All state is guarded by mu. Location and weather calls run outside the lock; a completing
// cycle re-acquires it and applies its snapshot, publishes events and updates lastRainStatus
// in a single critical section, so overlapping cycles are applied in completion order.
type Monitor struct {
	locations location.Source
	weather   client.WeatherClient
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu          sync.Mutex
	closed      bool // set by Shutdown; no cycle is launched afterwards
	active      bool
	generation  uint64 // bumped by Stop; cycles from an older generation are discarded
	state       models.MonitorState
	scheduler   *cron.Cron
	subscribers map[int]chan Event
	nextSubID   int
}

// New returns an idle Monitor. interval is validated by Start, not here.
func New(locations location.Source, weather client.WeatherClient, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		locations:   locations,
		weather:     weather,
		interval:    interval,
		logger:      logger.With(zap.String("component", "monitor")),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		baseCtx:     ctx,
		cancel:      cancel,
		subscribers: make(map[int]chan Event),
	}
}

// Interval returns the configured check interval.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start schedules a check every interval and runs one immediately. Calling Start while
// already active does nothing.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.active {
		m.mu.Unlock()
		return nil
	}
	if m.interval <= 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: got %s", ErrInvalidInterval, m.interval)
	}

	sched := cron.New(
		cron.WithLogger(cronLogger{sugar: m.logger.Sugar()}),
		cron.WithChain(cron.Recover(cronLogger{sugar: m.logger.Sugar()})),
	)
	sched.Schedule(cron.Every(m.interval), cron.FuncJob(func() { m.launch("timer") }))

	m.active = true
	m.state = models.MonitorState{IsMonitoring: true}
	m.scheduler = sched
	sched.Start()
	m.mu.Unlock()

	observability.MonitorActive.Set(1)
	m.logger.Info("monitoring started", zap.Duration("interval", m.interval))
	m.launch("start")
	return nil
}

// Stop cancels the schedule and resets state. Cycles still in flight are allowed to finish
// but their results are discarded. Calling Stop while idle does nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	m.generation++
	m.state = models.MonitorState{}
	sched := m.scheduler
	m.scheduler = nil
	m.mu.Unlock()

	// Jobs only launch a cycle goroutine, so this wait is short.
	<-sched.Stop().Done()
	observability.MonitorActive.Set(0)
	m.logger.Info("monitoring stopped")
}

// CheckNow runs one cycle without touching the schedule. It works whether or not the monitor is
// active, and does nothing after Shutdown.
func (m *Monitor) CheckNow() {
	m.launch("manual")
}

// IsActive reports whether monitoring is on.
func (m *Monitor) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// State returns a copy of the current state.
func (m *Monitor) State() models.MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	st.IsMonitoring = m.active
	if m.state.LastSnapshot != nil {
		snap := *m.state.LastSnapshot
		st.LastSnapshot = &snap
	}
	if m.state.LastLocation != nil {
		loc := *m.state.LastLocation
		st.LastLocation = &loc
	}
	return st
}

// Subscribe registers a listener. Events are delivered without blocking the monitor: if the
// channel's buffer is full the event is dropped for that subscriber. The returned func
// unsubscribes and closes the channel.
func (m *Monitor) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subscribers[id]; ok {
				delete(m.subscribers, id)
				close(ch)
			}
		})
	}
}

// Wait blocks until every cycle started so far has finished.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Shutdown stops monitoring and waits for in-flight cycles. If ctx expires first, pending
// location and weather calls are canceled and ctx's error is returned. The monitor cannot be
// restarted afterwards.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Stop()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		return ctx.Err()
	}
}

func (m *Monitor) launch(trigger string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Debug("cycle not started: monitor shut down", zap.String("trigger", trigger))
		return
	}
	gen := m.generation
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.runCycle(gen, trigger)
	}()
}

// runCycle is one location fetch, weather fetch and edge check. Failures end the cycle
// without touching state or publishing anything.
func (m *Monitor) runCycle(gen uint64, trigger string) {
	cycleID := m.newID()
	logger := m.logger.With(zap.String("cycle_id", cycleID), zap.String("trigger", trigger))
	ctx := client.WithCorrelationID(m.baseCtx, cycleID)
	start := time.Now()

	coord, err := m.locations.RequestCurrent(ctx)
	if err != nil {
		observability.MonitorCyclesTotal.WithLabelValues("location_unavailable").Inc()
		logger.Debug("cycle skipped: location unavailable", zap.Error(err))
		return
	}

	snap, err := m.weather.Fetch(ctx, coord)
	if err != nil {
		category := client.CategorizeError(err)
		result := "network_error"
		if category == client.ErrorCategoryDecode {
			result = "decode_error"
		}
		observability.MonitorCyclesTotal.WithLabelValues(result).Inc()
		logger.Debug("cycle skipped: weather fetch failed",
			zap.String("error_category", string(category)),
			zap.Error(err))
		return
	}

	m.apply(gen, coord, snap, logger)
	logger.Debug("cycle complete", zap.Duration("duration", time.Since(start)))
}

func (m *Monitor) apply(gen uint64, coord models.Coordinate, snap models.WeatherSnapshot, logger *zap.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		observability.MonitorCyclesTotal.WithLabelValues("discarded").Inc()
		logger.Debug("cycle result discarded: monitoring stopped while in flight")
		return
	}

	now := m.now()
	m.state.LastLocation = &coord
	m.state.LastSnapshot = &snap
	m.publishLocked(Event{
		Kind:   EventWeatherUpdate,
		Update: &models.WeatherUpdate{Snapshot: snap, Location: coord, Timestamp: now},
	})

	if snap.Raining && !m.state.LastRainStatus {
		alert := &models.RainAlert{
			ID:              m.newID(),
			PrecipitationMM: snap.PrecipitationMM,
			WeatherCode:     snap.WeatherCode,
			Location:        coord,
			Timestamp:       now,
		}
		observability.RainAlertsTotal.Inc()
		logger.Info("rain alert",
			zap.String("alert_id", alert.ID),
			zap.Float64("precipitation_mm", snap.PrecipitationMM),
			zap.String("weather_code", snap.WeatherCode))
		m.publishLocked(Event{Kind: EventRainAlert, Alert: alert})
	}
	m.state.LastRainStatus = snap.Raining
	observability.MonitorCyclesTotal.WithLabelValues("success").Inc()
}

func (m *Monitor) publishLocked(ev Event) {
	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			observability.MonitorEventsDroppedTotal.WithLabelValues(string(ev.Kind)).Inc()
			m.logger.Warn("subscriber not keeping up, event dropped", zap.String("kind", string(ev.Kind)))
		}
	}
}

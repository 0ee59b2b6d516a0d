// Package notify polls the alert endpoint and fans new alerts out to local
// listeners.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/PabloGalante/clara-companion/internal/client"
	"github.com/PabloGalante/clara-companion/internal/observability"
)

const DefaultInterval = 5 * time.Second

// AlertAPI is the part of the API client the dispatcher needs.
type AlertAPI interface {
	AlertStatus(ctx context.Context) (client.AlertStatus, error)
	RaiseAlert(ctx context.Context) (time.Time, error)
}

// Dispatcher fires every subscribed listener once for each poll that sees
// an alert newer than the previous check. Several raises between two polls
// produce a single notification.
//
// Listeners run on the polling goroutine and must not call Stop.
type Dispatcher struct {
	api      AlertAPI
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	listeners map[uint64]func()
	nextID    uint64
	// lastCheck is in server time. It is seeded by the first successful
	// status after Start, from startedAt shifted by the observed clock skew.
	lastCheck time.Time
	startedAt time.Time
	seeded    bool
	gen       uint64
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewDispatcher(api AlertAPI, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Dispatcher{
		api:       api,
		interval:  interval,
		now:       time.Now,
		listeners: make(map[uint64]func()),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (d *Dispatcher) Subscribe(fn func()) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.listeners, id)
			d.mu.Unlock()
		})
	}
}

// Start begins polling. Alerts raised before Start are not reported.
// Calling Start on a running dispatcher is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}

	d.gen++
	d.running = true
	d.startedAt = d.now()
	d.lastCheck = time.Time{}
	d.seeded = false

	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.loop(ctx, d.gen, d.done)
}

// Stop cancels the loop and any in-flight request and waits for the loop
// to exit. No listener fires from polling once Stop returns.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.gen++
	d.cancel()
	done := d.done
	d.mu.Unlock()

	<-done
}

// Running reports whether the polling loop is active.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Trigger fires every listener once, immediately.
func (d *Dispatcher) Trigger() {
	d.fire()
}

// Simulate raises an alert on the server and notifies listeners without
// waiting for the next poll. The check time moves past the raised alert so
// the poller does not report it a second time.
func (d *Dispatcher) Simulate(ctx context.Context) error {
	at, err := d.api.RaiseAlert(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Error("failed to simulate alert", "error", err)
		return err
	}

	d.mu.Lock()
	if at.After(d.lastCheck) {
		d.lastCheck = at
	}
	d.mu.Unlock()

	d.fire()
	return nil
}

// Poll runs a single check against the current generation. It reports
// whether listeners were fired.
func (d *Dispatcher) Poll(ctx context.Context) (bool, error) {
	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()
	return d.poll(ctx, gen)
}

func (d *Dispatcher) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	log := observability.WithFields("component", "alert_dispatcher")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.poll(ctx, gen); err != nil && ctx.Err() == nil {
				log.Warn("alert check failed", "error", err)
			}
		}
	}
}

func (d *Dispatcher) poll(ctx context.Context, gen uint64) (bool, error) {
	st, err := d.api.AlertStatus(ctx)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	if gen != d.gen {
		// Stopped or restarted while the request was in flight.
		d.mu.Unlock()
		return false, nil
	}
	if !d.seeded {
		d.seedLocked(st.CurrentTime)
	}
	if st.LastAlert.IsZero() || !st.LastAlert.After(d.lastCheck) {
		d.mu.Unlock()
		return false, nil
	}
	// Later raises are strictly newer than the one just reported.
	d.lastCheck = st.LastAlert
	d.mu.Unlock()

	observability.Logger().Info("new alert detected", "last_alert", st.LastAlert)
	d.fire()
	return true, nil
}

// seedLocked translates the local start time into server time. The API may
// run on another host whose clock disagrees with ours.
func (d *Dispatcher) seedLocked(serverNow time.Time) {
	d.seeded = true
	start := d.startedAt
	if !serverNow.IsZero() {
		start = start.Add(serverNow.Sub(d.now()))
	}
	// Simulate may already have moved the check time forward.
	if start.After(d.lastCheck) {
		d.lastCheck = start
	}
}

func (d *Dispatcher) fire() {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		d.call(fn)
	}
}

// call isolates listener panics so one bad listener cannot stop the others
// or kill the polling loop.
func (d *Dispatcher) call(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			observability.Logger().Error("alert listener panicked", "panic", p)
		}
	}()
	fn()
}

// Package chat keeps the caregiver's view of the conversation: the server
// message list, locally pending sends, the active responder and the alert
// banner.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/clara-companion/internal/domain"
	"github.com/PabloGalante/clara-companion/internal/observability"
)

const DefaultPollInterval = 3 * time.Second

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrAgentActive  = errors.New("the agent is answering; switch to caregiver mode to send")
	ErrInvalidRole  = errors.New("role must be user or agent")
)

// API is the part of the API client the orchestrator needs.
type API interface {
	ListMessages(ctx context.Context) ([]domain.Message, error)
	SendMessage(ctx context.Context, recipient, message string, role domain.Role) (domain.MessageID, error)
	PostMessage(ctx context.Context, text string, role domain.Role) (domain.MessageID, error)
	SetMode(ctx context.Context, agent bool) (domain.Mode, error)
	GetMode(ctx context.Context) (domain.Mode, error)
}

type EntryStatus string

const (
	StatusDelivered EntryStatus = "delivered"
	StatusPending   EntryStatus = "pending"
	// StatusSent means the server accepted the message but the polled list
	// does not contain it yet.
	StatusSent   EntryStatus = "sent"
	StatusFailed EntryStatus = "failed"
)

type Entry struct {
	ID        domain.MessageID
	Content   string
	Role      domain.Role
	Timestamp time.Time
	Status    EntryStatus
}

// Snapshot is an immutable copy of the orchestrator state handed to
// observers.
type Snapshot struct {
	Entries []Entry
	Role    domain.Role
	Alert   bool
	Err     error
}

type Orchestrator struct {
	api       API
	recipient string
	interval  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	server []domain.Message
	// refreshSeq is handed out before each list request; appliedSeq is the
	// newest one whose response was applied.
	refreshSeq uint64
	appliedSeq uint64
	local     []*Entry
	role      domain.Role
	alert     bool
	err       error
	observers map[uint64]func(Snapshot)
	nextObs   uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func New(api API, recipient string, interval time.Duration) *Orchestrator {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Orchestrator{
		api:       api,
		recipient: recipient,
		interval:  interval,
		now:       time.Now,
		role:      domain.RoleUser,
		observers: make(map[uint64]func(Snapshot)),
	}
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn may be called from several goroutines.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextObs
	o.nextObs++
	o.observers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

// Start syncs the role and message list, then keeps polling the list until
// Stop or ctx is done.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return
	}
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})
	done := o.done
	o.mu.Unlock()

	log := observability.WithFields("component", "chat_orchestrator")

	if m, err := o.api.GetMode(ctx); err != nil {
		log.Warn("failed to read mode", "error", err)
	} else {
		o.applyMode(m)
	}

	go func() {
		defer close(done)
		if err := o.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Warn("failed to load messages", "error", err)
		}

		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.Refresh(ctx); err != nil && ctx.Err() == nil {
					log.Warn("failed to poll messages", "error", err)
				}
			}
		}
	}()
}

func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Refresh fetches the message list once. Poll failures are returned but
// never shown as a send error. A response older than one already applied is
// dropped, so concurrent refreshes never move the view backwards.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	o.mu.Lock()
	o.refreshSeq++
	seq := o.refreshSeq
	o.mu.Unlock()

	msgs, err := o.api.ListMessages(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if seq < o.appliedSeq {
		o.mu.Unlock()
		return nil
	}
	o.appliedSeq = seq
	o.server = msgs
	o.reconcileLocked()
	o.mu.Unlock()

	o.publish()
	return nil
}

// Submit appends text as a pending entry and sends it through the relay as
// the caregiver. The previous send error is cleared first.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	o.mu.Lock()
	if o.role == domain.RoleAgent {
		o.mu.Unlock()
		return ErrAgentActive
	}
	o.err = nil
	entry := &Entry{
		ID:        domain.MessageID("local-" + uuid.NewString()),
		Content:   text,
		Role:      domain.RoleUser,
		Timestamp: o.now(),
		Status:    StatusPending,
	}
	o.local = append(o.local, entry)
	o.mu.Unlock()
	o.publish()

	id, err := o.api.SendMessage(ctx, o.recipient, text, domain.RoleUser)

	o.mu.Lock()
	if err != nil {
		entry.Status = StatusFailed
		o.err = err
	} else {
		entry.ID = id
		entry.Status = StatusSent
		o.reconcileLocked()
	}
	o.mu.Unlock()
	o.publish()

	if err != nil {
		observability.LoggerFromContext(ctx).Warn("send failed", "error", err)
		return err
	}

	if rerr := o.Refresh(ctx); rerr != nil {
		observability.LoggerFromContext(ctx).Debug("refresh after send failed", "error", rerr)
	}
	return nil
}

// ShareContext records text as a caregiver note in the shared log without
// texting the contact, so the agent and later summaries can use it.
func (o *Orchestrator) ShareContext(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if _, err := o.api.PostMessage(ctx, text, domain.RoleCaregiver); err != nil {
		o.mu.Lock()
		o.err = err
		o.mu.Unlock()
		o.publish()
		return err
	}
	if err := o.Refresh(ctx); err != nil {
		observability.LoggerFromContext(ctx).Debug("refresh after context failed", "error", err)
	}
	return nil
}

// SetRole switches the active responder. The local role only changes once
// the server accepted the mode.
func (o *Orchestrator) SetRole(ctx context.Context, role domain.Role) error {
	if role != domain.RoleUser && role != domain.RoleAgent {
		return ErrInvalidRole
	}

	m, err := o.api.SetMode(ctx, role == domain.RoleAgent)
	if err != nil {
		o.mu.Lock()
		o.err = err
		o.mu.Unlock()
		o.publish()
		return err
	}

	o.applyMode(m)
	return nil
}

func (o *Orchestrator) ToggleRole(ctx context.Context) error {
	next := domain.RoleAgent
	if o.Role() == domain.RoleAgent {
		next = domain.RoleUser
	}
	return o.SetRole(ctx, next)
}

func (o *Orchestrator) Role() domain.Role {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.role
}

// RaiseAlert shows the alert banner until DismissAlert. It matches the
// listener signature of the notification dispatcher.
func (o *Orchestrator) RaiseAlert() {
	o.mu.Lock()
	o.alert = true
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) DismissAlert() {
	o.mu.Lock()
	o.alert = false
	o.mu.Unlock()
	o.publish()
}

// DismissError clears the error and drops failed entries.
func (o *Orchestrator) DismissError() {
	o.mu.Lock()
	o.err = nil
	kept := o.local[:0]
	for _, e := range o.local {
		if e.Status != StatusFailed {
			kept = append(kept, e)
		}
	}
	o.local = kept
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) applyMode(m domain.Mode) {
	o.mu.Lock()
	if m.Agent {
		o.role = domain.RoleAgent
	} else {
		o.role = domain.RoleUser
	}
	o.mu.Unlock()
	o.publish()
}

// reconcileLocked drops sent entries the server list already contains.
func (o *Orchestrator) reconcileLocked() {
	if len(o.local) == 0 {
		return
	}
	seen := make(map[domain.MessageID]bool, len(o.server))
	for _, m := range o.server {
		seen[m.ID] = true
	}
	kept := o.local[:0]
	for _, e := range o.local {
		if e.Status == StatusSent && seen[e.ID] {
			continue
		}
		kept = append(kept, e)
	}
	o.local = kept
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	entries := make([]Entry, 0, len(o.server)+len(o.local))
	for _, m := range o.server {
		entries = append(entries, Entry{
			ID:        m.ID,
			Content:   m.Content,
			Role:      m.Role,
			Timestamp: m.Timestamp,
			Status:    StatusDelivered,
		})
	}
	for _, e := range o.local {
		entries = append(entries, *e)
	}
	return Snapshot{Entries: entries, Role: o.role, Alert: o.alert, Err: o.err}
}

func (o *Orchestrator) publish() {
	o.mu.Lock()
	snap := o.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(o.observers))
	for _, fn := range o.observers {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

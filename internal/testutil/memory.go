// Package testutil provides in-memory repositories that mirror the MySQL
// implementations closely enough for package tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
)

// ---- Patients ----

type Patients struct {
	mu   sync.Mutex
	rows map[string]model.Patient
	// Updates counts successful Update calls.
	Updates int
}

func NewPatients(ps ...model.Patient) *Patients {
	s := &Patients{rows: map[string]model.Patient{}}
	for _, p := range ps {
		s.rows[p.ID] = p
	}
	return s
}

var _ repository.PatientsRepository = (*Patients)(nil)

func (s *Patients) GetByID(_ context.Context, tenantID int64, id string) (*model.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok || p.TenantID != tenantID {
		return nil, nil
	}
	return &p, nil
}

func (s *Patients) Update(_ context.Context, tenantID int64, id string, upd model.PatientUpdate, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok || p.TenantID != tenantID {
		return nil
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	if upd.PreferredChannel != nil {
		ch := *upd.PreferredChannel
		p.PreferredChannel = &ch
	}
	if upd.Flagged != nil {
		p.Flagged = *upd.Flagged
	}
	p.UpdatedAt = now
	s.rows[id] = p
	s.Updates++
	return nil
}

// Get returns the stored patient regardless of tenant.
func (s *Patients) Get(id string) model.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

// ---- Notes ----

type Notes struct {
	mu   sync.Mutex
	Rows []model.Note
	Err  error
}

func (s *Notes) Insert(_ context.Context, n model.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Rows = append(s.Rows, n)
	return nil
}

func (s *Notes) All() []model.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Note(nil), s.Rows...)
}

// ---- Messages ----

type Messages struct {
	mu   sync.Mutex
	Rows []model.Message
}

func (s *Messages) Insert(_ context.Context, m model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rows = append(s.Rows, m)
	return nil
}

func (s *Messages) All() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.Rows...)
}

// ---- Action logs ----

type ActionLogs struct {
	mu   sync.Mutex
	Rows []model.AutomationActionLog
	Err  error
}

var _ repository.ActionLogsRepository = (*ActionLogs)(nil)

func (s *ActionLogs) Insert(_ context.Context, l model.AutomationActionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Rows = append(s.Rows, l)
	return nil
}

func (s *ActionLogs) ListByRun(_ context.Context, tenantID int64, runID string) ([]model.AutomationActionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AutomationActionLog
	for _, l := range s.Rows {
		if l.TenantID == tenantID && l.RunID == runID {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// ---- Runs ----

type Runs struct {
	// CreateErr, when set, fails every Create.
	CreateErr error

	mu   sync.Mutex
	rows map[string]model.AutomationRun
	// order keeps insertion order for ListRecent.
	order []string
}

func NewRuns() *Runs { return &Runs{rows: map[string]model.AutomationRun{}} }

var _ repository.RunsRepository = (*Runs)(nil)

func (s *Runs) Create(_ context.Context, run model.AutomationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if _, dup := s.rows[run.ID]; dup {
		return errors.New("duplicate run id")
	}
	s.rows[run.ID] = run
	s.order = append(s.order, run.ID)
	return nil
}

func (s *Runs) Finish(_ context.Context, tenantID int64, id string, status model.RunStatus, errMsg *string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.rows[id]
	if !ok || run.TenantID != tenantID || run.FinishedAt != nil {
		return repository.ErrRunAlreadyFinished
	}
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &finishedAt
	s.rows[id] = run
	return nil
}

func (s *Runs) GetByID(_ context.Context, tenantID int64, id string) (*model.AutomationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.rows[id]
	if !ok || run.TenantID != tenantID {
		return nil, nil
	}
	return &run, nil
}

func (s *Runs) ListRecent(_ context.Context, tenantID int64, limit int) ([]model.AutomationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AutomationRun
	for i := len(s.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if run := s.rows[s.order[i]]; run.TenantID == tenantID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (s *Runs) All() []model.AutomationRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AutomationRun, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.rows[id])
	}
	return out
}

// ---- Rules ----

type Rules struct {
	mu   sync.Mutex
	Rows []model.AutomationRule
	Err  error
}

var _ repository.RulesRepository = (*Rules)(nil)

func (s *Rules) ListEnabled(_ context.Context, tenantID int64, eventName string) ([]model.AutomationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []model.AutomationRule
	for _, r := range s.Rows {
		if r.TenantID == tenantID && r.TriggerEvent == eventName && r.Enabled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Rules) Insert(_ context.Context, rule model.AutomationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Rows = append(s.Rows, rule)
	return nil
}

// ---- Outbox ----

// Outbox mirrors OutboxRepositoryImpl: claims are oldest-first with a lease,
// and finalizers only touch pending rows.
type Outbox struct {
	mu   sync.Mutex
	rows map[string]*model.OutboxEvent
	// InsertErr, when set, fails every Insert.
	InsertErr error
}

func NewOutbox() *Outbox { return &Outbox{rows: map[string]*model.OutboxEvent{}} }

var _ repository.OutboxRepository = (*Outbox)(nil)

func (s *Outbox) Insert(_ context.Context, _ *sqlx.Tx, e model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	if _, dup := s.rows[e.ID]; dup {
		return errors.New("duplicate outbox id")
	}
	e.UpdatedAt = e.CreatedAt
	s.rows[e.ID] = &e
	return nil
}

func (s *Outbox) ClaimReady(_ context.Context, limit int, now time.Time, lease time.Duration) ([]model.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ready []*model.OutboxEvent
	for _, e := range s.rows {
		if e.Status != model.OutboxPending {
			continue
		}
		if e.NextAttemptAt != nil && e.NextAttemptAt.After(now) {
			continue
		}
		ready = append(ready, e)
	}
	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].CreatedAt.Equal(ready[j].CreatedAt) {
			return ready[i].CreatedAt.Before(ready[j].CreatedAt)
		}
		return ready[i].ID < ready[j].ID
	})
	if len(ready) > limit {
		ready = ready[:limit]
	}

	out := make([]model.OutboxEvent, 0, len(ready))
	for _, e := range ready {
		out = append(out, *e)
		if lease > 0 {
			t := now.Add(lease)
			e.NextAttemptAt = &t
		}
	}
	return out, nil
}

func (s *Outbox) MarkPublished(_ context.Context, id string, now time.Time) error {
	return s.finalize(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxPublished
		e.NextAttemptAt = nil
		e.LastError = nil
		e.UpdatedAt = now
	})
}

func (s *Outbox) MarkFailed(_ context.Context, id, lastErr string, now time.Time) error {
	return s.finalize(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxFailed
		e.NextAttemptAt = nil
		e.LastError = &lastErr
		e.UpdatedAt = now
	})
}

func (s *Outbox) Reschedule(_ context.Context, id string, next time.Time, lastErr string, now time.Time) error {
	return s.finalize(id, func(e *model.OutboxEvent) {
		e.NextAttemptAt = &next
		e.LastError = &lastErr
		e.UpdatedAt = now
	})
}

func (s *Outbox) finalize(id string, apply func(*model.OutboxEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok || e.Status != model.OutboxPending {
		return repository.ErrStaleOutboxEvent
	}
	e.Attempts++
	apply(e)
	return nil
}

func (s *Outbox) CountByStatus(_ context.Context, tenantID int64) (model.OutboxCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c model.OutboxCounts
	for _, e := range s.rows {
		if e.TenantID != tenantID {
			continue
		}
		switch e.Status {
		case model.OutboxPending:
			c.Pending++
		case model.OutboxPublished:
			c.Published++
		case model.OutboxFailed:
			c.Failed++
		}
	}
	return c, nil
}

// Get returns a copy of the stored event.
func (s *Outbox) Get(id string) (model.OutboxEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	if !ok {
		return model.OutboxEvent{}, false
	}
	return *e, true
}

// Put stores e as-is, bypassing Insert bookkeeping.
func (s *Outbox) Put(e model.OutboxEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[e.ID] = &e
}

// ---- Channel ----

// Channel records outbound messages; Err fails every send.
type Channel struct {
	mu   sync.Mutex
	Sent []model.OutboundMessage
	Err  error
}

func (c *Channel) Send(_ context.Context, msg model.OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Sent = append(c.Sent, msg)
	return nil
}

package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/action"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const scheduledWithPatient = `{"operator": "and", "conditions": [
	{"field": "status", "operator": "equals", "value": "scheduled"},
	{"field": "patientId", "operator": "exists"}
]}`

func rule(id string, tenant int64, trigger, cond, actions string) model.AutomationRule {
	r := model.AutomationRule{
		ID:           id,
		TenantID:     tenant,
		Name:         id,
		TriggerEvent: trigger,
		Actions:      json.RawMessage(actions),
		Enabled:      true,
	}
	if cond != "" {
		r.Conditions = json.RawMessage(cond)
	}
	return r
}

func appointmentEvent(tenant int64, payload map[string]any) model.BusEvent {
	return model.BusEvent{
		TenantID:   tenant,
		EventName:  "crm/appointment.created",
		EntityType: "appointment",
		EntityID:   "apt-1",
		Payload:    payload,
	}
}

type recordedCall struct {
	runID      string
	position   int
	actionType string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []recordedCall
	fail  map[string]string // action type -> error
}

func (f *fakeRunner) RunAction(_ context.Context, _ int64, runID string, position int, actionType string, _ json.RawMessage, _ map[string]any) action.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{runID, position, actionType})
	if msg, ok := f.fail[actionType]; ok {
		return action.Outcome{Status: model.ActionFailed, Error: msg}
	}
	return action.Outcome{Status: model.ActionSucceeded}
}

func TestHandleEvent_OnlyMatchingRulesOfTenantAndTrigger(t *testing.T) {
	rules := &testutil.Rules{Rows: []model.AutomationRule{
		rule("match", 1, "crm/appointment.created", scheduledWithPatient, `[{"type":"create_note","args":{"text":"x"}}]`),
		rule("no-match", 1, "crm/appointment.created", `{"field":"status","operator":"equals","value":"completed"}`, `[]`),
		rule("other-trigger", 1, "crm/appointment.cancelled", "", `[{"type":"create_note","args":{}}]`),
		rule("other-tenant", 2, "crm/appointment.created", "", `[{"type":"create_note","args":{}}]`),
	}}
	disabled := rule("disabled", 1, "crm/appointment.created", "", `[]`)
	disabled.Enabled = false
	rules.Rows = append(rules.Rows, disabled)

	runs := testutil.NewRuns()
	runner := &fakeRunner{}
	m := New(rules, runs, runner, clock.NewMockClock(t0), nil)

	out, err := m.HandleEvent(context.Background(), appointmentEvent(1, map[string]any{
		"status": "scheduled", "patientId": "123", model.SourceEventIDField: "evt-1",
	}))
	require.NoError(t, err)
	require.Len(t, out, 1)

	run := out[0]
	assert.Equal(t, "match", run.RuleID)
	assert.Equal(t, model.RunSucceeded, run.Status)
	assert.Equal(t, "evt-1", run.EventID)
	require.NotNil(t, run.FinishedAt)
	assert.Nil(t, run.Error)

	stored, err := runs.GetByID(context.Background(), 1, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunSucceeded, stored.Status)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "create_note", runner.calls[0].actionType)
}

func TestHandleEvent_ContinueOnErrorMarksRunFailed(t *testing.T) {
	rules := &testutil.Rules{Rows: []model.AutomationRule{
		rule("r1", 1, "crm/appointment.created", "", `[
			{"type": "draft_message", "args": {}},
			{"type": "create_note", "args": {"text": "hi"}},
			{"type": "update_patient", "args": {"flagged": true}}
		]`),
	}}
	runs := testutil.NewRuns()
	runner := &fakeRunner{fail: map[string]string{"draft_message": "Validation failed: channel is required"}}
	m := New(rules, runs, runner, clock.NewMockClock(t0), nil)

	out, err := m.HandleEvent(context.Background(), appointmentEvent(1, map[string]any{}))
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, model.RunFailed, out[0].Status)
	require.NotNil(t, out[0].Error)
	assert.Equal(t, "action 0 (draft_message): Validation failed: channel is required", *out[0].Error)

	require.Len(t, runner.calls, 3)
	for i, c := range runner.calls {
		assert.Equal(t, i, c.position)
		assert.Equal(t, out[0].ID, c.runID)
	}
}

func TestHandleEvent_EndToEndWithRunner(t *testing.T) {
	rules := &testutil.Rules{Rows: []model.AutomationRule{
		rule("r1", 1, "crm/appointment.created", scheduledWithPatient, `[
			{"type": "create_note", "args": {"patientId": "p-1"}},
			{"type": "create_note", "args": {"text": "Appointment {{status}}"}}
		]`),
	}}
	runs := testutil.NewRuns()
	notes := &testutil.Notes{}
	logs := &testutil.ActionLogs{}
	patients := testutil.NewPatients(model.Patient{ID: "p-1", TenantID: 1})
	clk := clock.NewMockClock(t0)
	runner := action.NewRunner(patients, notes, &testutil.Messages{}, logs, nil, clk, nil)
	m := New(rules, runs, runner, clk, nil)

	out, err := m.HandleEvent(context.Background(), appointmentEvent(1, map[string]any{"status": "scheduled", "patientId": "p-1"}))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, model.RunFailed, out[0].Status)

	entries, err := logs.ListByRun(context.Background(), 1, out[0].ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActionFailed, entries[0].Status)
	assert.Equal(t, "Validation failed: text is required", *entries[0].Error)
	assert.Equal(t, model.ActionSucceeded, entries[1].Status)

	require.Len(t, notes.All(), 1)
	assert.Equal(t, "Appointment scheduled", notes.All()[0].Body)
}

func TestHandleEvent_ManyRulesRunIndependently(t *testing.T) {
	rules := &testutil.Rules{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		rules.Rows = append(rules.Rows, rule(id, 1, "crm/appointment.created", "", `[{"type":"create_note","args":{"text":"x"}}]`))
	}
	runs := testutil.NewRuns()
	runner := &fakeRunner{}
	m := New(rules, runs, runner, clock.NewMockClock(t0), nil)
	m.Concurrency = 3

	out, err := m.HandleEvent(context.Background(), appointmentEvent(1, nil))
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, id, out[i].RuleID)
	}
	assert.Len(t, runs.All(), 5)
	assert.Len(t, runner.calls, 5)
}

func TestHandleEvent_EmptyAndOrGroups(t *testing.T) {
	rules := &testutil.Rules{Rows: []model.AutomationRule{
		rule("no-conditions", 1, "crm/appointment.created", "", `[]`),
		rule("empty-and", 1, "crm/appointment.created", `{"operator":"and","conditions":[]}`, `[]`),
		rule("empty-or", 1, "crm/appointment.created", `{"operator":"or","conditions":[]}`, `[]`),
	}}
	m := New(rules, testutil.NewRuns(), &fakeRunner{}, clock.NewMockClock(t0), nil)

	out, err := m.HandleEvent(context.Background(), appointmentEvent(1, map[string]any{}))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "no-conditions", out[0].RuleID)
	assert.Equal(t, "empty-and", out[1].RuleID)
	assert.Equal(t, model.RunSucceeded, out[0].Status)
}

func TestHandleEvent_InvalidRuleIsSkipped(t *testing.T) {
	rules := &testutil.Rules{Rows: []model.AutomationRule{
		rule("bad-operator", 1, "crm/appointment.created", `{"field":"status","operator":"matches","value":"s"}`, `[]`),
		rule("bad-actions", 1, "crm/appointment.created", "", `{"type":"create_note"}`),
		rule("good", 1, "crm/appointment.created", "", `[]`),
	}}
	m := New(rules, testutil.NewRuns(), &fakeRunner{}, clock.NewMockClock(t0), nil)

	out, err := m.HandleEvent(context.Background(), appointmentEvent(1, map[string]any{"status": "s"}))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "good", out[0].RuleID)
}

func TestHandleEvent_RuleLoadError(t *testing.T) {
	rules := &testutil.Rules{Err: errors.New("db down")}
	m := New(rules, testutil.NewRuns(), &fakeRunner{}, clock.NewMockClock(t0), nil)

	_, err := m.HandleEvent(context.Background(), appointmentEvent(1, nil))
	assert.ErrorIs(t, err, rules.Err)
}

func TestHandleEvent_DuplicateDeliveryWithoutDedupRunsTwice(t *testing.T) {
	rules := &testutil.Rules{Rows: []model.AutomationRule{rule("r1", 1, "crm/appointment.created", "", `[]`)}}
	runs := testutil.NewRuns()
	m := New(rules, runs, &fakeRunner{}, clock.NewMockClock(t0), nil)
	ev := appointmentEvent(1, map[string]any{model.SourceEventIDField: "evt-1"})

	_, err := m.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	_, err = m.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Len(t, runs.All(), 2)
}

func TestHandleEvent_RedisDedup(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rules := &testutil.Rules{Rows: []model.AutomationRule{
		rule("r1", 1, "crm/appointment.created", "", `[]`),
		rule("r2", 1, "crm/appointment.created", "", `[]`),
	}}
	runs := testutil.NewRuns()
	m := New(rules, runs, &fakeRunner{}, clock.NewMockClock(t0), nil)
	m.Dedup = NewRedisDeduper(rdb, time.Hour)
	ev := appointmentEvent(1, map[string]any{model.SourceEventIDField: "evt-1"})

	first, err := m.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := m.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, runs.All(), 2)

	// events without a correlation id are never deduplicated
	_, err = m.HandleEvent(context.Background(), appointmentEvent(1, nil))
	require.NoError(t, err)
	assert.Len(t, runs.All(), 4)

	mr.FastForward(2 * time.Hour)
	third, err := m.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Len(t, third, 2)
}

func TestRedisDeduper_FailsOpen(t *testing.T) {
	// nothing listens on port 1
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	rules := &testutil.Rules{Rows: []model.AutomationRule{rule("r1", 1, "crm/appointment.created", "", `[]`)}}
	m := New(rules, testutil.NewRuns(), &fakeRunner{}, clock.NewMockClock(t0), nil)
	m.Dedup = NewRedisDeduper(rdb, time.Hour)

	out, err := m.HandleEvent(context.Background(), appointmentEvent(1, map[string]any{model.SourceEventIDField: "evt-1"}))
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestHandleEvent_DedupClaimReleasedWhenRunNotCreated(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rules := &testutil.Rules{Rows: []model.AutomationRule{rule("r1", 1, "crm/appointment.created", "", `[]`)}}
	runs := testutil.NewRuns()
	runs.CreateErr = errors.New("lock wait timeout")
	m := New(rules, runs, &fakeRunner{}, clock.NewMockClock(t0), nil)
	m.Dedup = NewRedisDeduper(rdb, time.Hour)
	ev := appointmentEvent(1, map[string]any{model.SourceEventIDField: "evt-9"})

	_, err := m.HandleEvent(context.Background(), ev)
	require.Error(t, err)
	assert.False(t, mr.Exists("automation:dedup:evt-9:r1"))

	// the redelivered event must still produce its run
	runs.CreateErr = nil
	out, err := m.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "r1", out[0].RuleID)
	assert.True(t, mr.Exists("automation:dedup:evt-9:r1"))

	again, err := m.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestHandleEvent_ErrorSummaryKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("é", maxErrorSummary)
	rules := &testutil.Rules{Rows: []model.AutomationRule{
		rule("r1", 1, "crm/appointment.created", "", `[{"type": "create_note", "args": {}}]`),
	}}
	runs := testutil.NewRuns()
	m := New(rules, runs, &fakeRunner{fail: map[string]string{"create_note": long}}, clock.NewMockClock(t0), nil)

	out, err := m.HandleEvent(context.Background(), appointmentEvent(1, nil))
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Error)
	assert.True(t, utf8.ValidString(*out[0].Error))
	assert.LessOrEqual(t, len(*out[0].Error), maxErrorSummary)
}

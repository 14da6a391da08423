package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestEmit_WritesPendingEvent(t *testing.T) {
	store := testutil.NewOutbox()
	svc := New(store, clock.NewMockClock(t0))

	ev, err := svc.Emit(context.Background(), 7, "crm/appointment.created", "appointment", "apt-1",
		map[string]any{"status": "scheduled", "patientId": "123"})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, model.OutboxPending, ev.Status)
	assert.Zero(t, ev.Attempts)
	assert.Nil(t, ev.NextAttemptAt)
	assert.Equal(t, t0, ev.CreatedAt)
	assert.JSONEq(t, `{"status":"scheduled","patientId":"123"}`, string(ev.Payload))

	stored, ok := store.Get(ev.ID)
	require.True(t, ok)
	assert.Equal(t, ev.EventName, stored.EventName)
	assert.Equal(t, int64(7), stored.TenantID)
}

func TestEmit_PayloadForms(t *testing.T) {
	svc := New(testutil.NewOutbox(), clock.NewMockClock(t0))

	ev, err := svc.Emit(context.Background(), 1, "crm/patient.updated", "patient", "p1", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(ev.Payload))

	ev, err = svc.Emit(context.Background(), 1, "crm/patient.updated", "patient", "p1", json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(ev.Payload))

	_, err = svc.Emit(context.Background(), 1, "crm/patient.updated", "patient", "p1", json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestEmit_RejectsIncompleteEvents(t *testing.T) {
	store := testutil.NewOutbox()
	svc := New(store, clock.NewMockClock(t0))

	_, err := svc.Emit(context.Background(), 0, "crm/x", "x", "1", nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = svc.Emit(context.Background(), 1, " ", "x", "1", nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = svc.Emit(context.Background(), 1, "crm/x", "", "1", nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	counts, err := store.CountByStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, counts.Pending)
}

func TestEmit_PropagatesStoreFailure(t *testing.T) {
	store := testutil.NewOutbox()
	store.InsertErr = errors.New("mysql down")
	svc := New(store, clock.NewMockClock(t0))

	_, err := svc.Emit(context.Background(), 1, "crm/x", "x", "1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.InsertErr)
	assert.NotErrorIs(t, err, ErrInvalidEvent)
}

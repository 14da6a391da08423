package action

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

func TestParse_Kinds(t *testing.T) {
	a, err := Parse("create_note", json.RawMessage(`{"text": "Called {{patient.firstName}}"}`))
	require.NoError(t, err)
	assert.Equal(t, CreateNote{Text: "Called {{patient.firstName}}"}, a)

	a, err = Parse("send_message", json.RawMessage(`{"patientId": "p1", "channel": "sms", "body": "hi"}`))
	require.NoError(t, err)
	assert.Equal(t, KindSendMessage, a.Kind())
	assert.Equal(t, model.ChannelSMS, a.(SendMessage).Channel)

	a, err = Parse("update_patient", json.RawMessage(`{"flagged": false}`))
	require.NoError(t, err)
	require.NotNil(t, a.(UpdatePatient).Flagged)
	assert.False(t, *a.(UpdatePatient).Flagged)
}

func TestParse_Validation(t *testing.T) {
	cases := []struct {
		name, kind, args, msg string
	}{
		{"missing text", "create_note", `{}`, "Validation failed: text is required"},
		{"null args", "create_note", `null`, "Validation failed: text is required"},
		{"bad channel", "draft_message", `{"channel": "fax", "body": "x"}`, "Validation failed: channel must be one of [sms email]"},
		{"wrong type", "create_note", `{"text": 42}`, "Validation failed: text must be a string"},
		{"unknown field", "update_patient", `{"lastName": "Smith"}`, `Validation failed: unknown field "lastName"`},
		{"empty update", "update_patient", `{}`, "Validation failed: at least one of status, preferredChannel, flagged is required"},
		{"bad status", "update_patient", `{"status": "deleted"}`, "Validation failed: status must be one of [active inactive archived]"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.kind, json.RawMessage(tc.args))
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tc.msg, err.Error())
		})
	}
}

func TestParse_UnknownKind(t *testing.T) {
	_, err := Parse("send_fax", json.RawMessage(`{}`))
	require.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, "Unknown action type: send_fax", err.Error())
}

func TestRender(t *testing.T) {
	data := map[string]any{
		"patient":  map[string]any{"firstName": "Ada"},
		"slot":     map[string]any{"hour": 9.0},
		"reminder": true,
	}

	assert.Equal(t, "Hi Ada, see you at 9.", Render("Hi {{patient.firstName}}, see you at {{ slot.hour }}.", data))
	assert.Equal(t, "flag=true", Render("flag={{reminder}}", data))
	assert.Equal(t, "missing=", Render("missing={{patient.lastName}}", data))
	assert.Equal(t, "no placeholders", Render("no placeholders", nil))
}

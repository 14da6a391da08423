// Package action holds the closed set of automation action kinds, their
// typed arguments, and the Runner that executes them against tenant data.
package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrUnknownAction = errors.New("unknown action type")
)

type Kind string

const (
	KindCreateNote    Kind = "create_note"
	KindDraftMessage  Kind = "draft_message"
	KindSendMessage   Kind = "send_message"
	KindUpdatePatient Kind = "update_patient"
)

func (k Kind) String() string { return string(k) }

func (k Kind) Valid() bool {
	switch k {
	case KindCreateNote, KindDraftMessage, KindSendMessage, KindUpdatePatient:
		return true
	}
	return false
}

// Action is implemented only by the argument structs in this package.
type Action interface {
	Kind() Kind
	patientRef() string
}

type CreateNote struct {
	PatientID string `json:"patientId" validate:"omitempty,max=64"`
	Text      string `json:"text"      validate:"required,max=10000"`
}

type DraftMessage struct {
	PatientID string        `json:"patientId" validate:"omitempty,max=64"`
	Channel   model.Channel `json:"channel"   validate:"required,oneof=sms email"`
	Body      string        `json:"body"      validate:"required,max=4000"`
}

type SendMessage struct {
	PatientID string        `json:"patientId" validate:"omitempty,max=64"`
	Channel   model.Channel `json:"channel"   validate:"required,oneof=sms email"`
	Body      string        `json:"body"      validate:"required,max=4000"`
	Recipient string        `json:"recipient" validate:"omitempty,max=320"`
}

// UpdatePatient may only touch the allow-listed fields below.
type UpdatePatient struct {
	PatientID        string  `json:"patientId"        validate:"omitempty,max=64"`
	Status           *string `json:"status"           validate:"omitempty,oneof=active inactive archived"`
	PreferredChannel *string `json:"preferredChannel" validate:"omitempty,oneof=sms email"`
	Flagged          *bool   `json:"flagged"`
}

func (CreateNote) Kind() Kind    { return KindCreateNote }
func (DraftMessage) Kind() Kind  { return KindDraftMessage }
func (SendMessage) Kind() Kind   { return KindSendMessage }
func (UpdatePatient) Kind() Kind { return KindUpdatePatient }

func (a CreateNote) patientRef() string    { return a.PatientID }
func (a DraftMessage) patientRef() string  { return a.PatientID }
func (a SendMessage) patientRef() string   { return a.PatientID }
func (a UpdatePatient) patientRef() string { return a.PatientID }

func (a UpdatePatient) update() model.PatientUpdate {
	return model.PatientUpdate{Status: a.Status, PreferredChannel: a.PreferredChannel, Flagged: a.Flagged}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names ("patientId") instead of Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse decodes and validates args for kind. Unknown kinds return
// ErrUnknownAction; malformed or invalid args return ErrValidation. Fields
// outside the kind's schema are rejected.
func Parse(kind string, args json.RawMessage) (Action, error) {
	switch Kind(kind) {
	case KindCreateNote:
		return decode[CreateNote](args)
	case KindDraftMessage:
		return decode[DraftMessage](args)
	case KindSendMessage:
		return decode[SendMessage](args)
	case KindUpdatePatient:
		a, err := decode[UpdatePatient](args)
		if err != nil {
			return nil, err
		}
		if a.(UpdatePatient).update().Empty() {
			return nil, validationError("at least one of status, preferredChannel, flagged is required")
		}
		return a, nil
	default:
		return nil, &Failure{kind: ErrUnknownAction, msg: "Unknown action type: " + kind}
	}
}

func decode[T Action](args json.RawMessage) (Action, error) {
	var out T
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, validationError(jsonProblem(err))
	}
	if err := validate.Struct(out); err != nil {
		return nil, validationError(describe(err))
	}
	return out, nil
}

func jsonProblem(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type.Kind())
	}
	if msg, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return "unknown field " + msg
	}
	return "malformed arguments"
}

func describe(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err.Error()
	}

	parts := make([]string, 0, len(ves))
	for _, fe := range ves {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// Failure is an action-level error. Its message is what gets stored in the
// action log; errors.Is matches the ErrValidation/ErrNotFound/ErrUnknownAction class.
type Failure struct {
	kind error
	msg  string
}

func (f *Failure) Error() string { return f.msg }
func (f *Failure) Unwrap() error { return f.kind }

func validationError(detail string) *Failure {
	return &Failure{kind: ErrValidation, msg: "Validation failed: " + detail}
}

func notFound(entity, id string) *Failure {
	return &Failure{kind: ErrNotFound, msg: fmt.Sprintf("%s not found: %s", entity, id)}
}

package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/metrics"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/util"
)

const logWriteTimeout = 5 * time.Second

// Channel delivers an outbound message (SMS/email) through an external adapter.
type Channel interface {
	Send(ctx context.Context, msg model.OutboundMessage) error
}

// Outcome is what RunAction reports back to the run loop.
type Outcome struct {
	Status model.ActionStatus
	Error  string
}

func (o Outcome) Succeeded() bool { return o.Status == model.ActionSucceeded }

// Runner executes one action at a time against tenant-scoped records.
type Runner struct {
	patients repository.PatientsRepository
	notes    repository.NotesRepository
	messages repository.MessagesRepository
	logs     repository.ActionLogsRepository
	channel  Channel
	clock    clock.Clock
	logger   *zap.Logger

	// Timeout bounds a single action; zero disables it.
	Timeout time.Duration
	// CountryCode is applied to national phone numbers before sending SMS.
	CountryCode string
}

func NewRunner(
	patients repository.PatientsRepository,
	notes repository.NotesRepository,
	messages repository.MessagesRepository,
	logs repository.ActionLogsRepository,
	channel Channel,
	clk clock.Clock,
	log *zap.Logger,
) *Runner {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if log == nil {
		log = logger.L()
	}
	return &Runner{
		patients: patients,
		notes:    notes,
		messages: messages,
		logs:     logs,
		channel:  channel,
		clock:    clk,
		logger:   log,
	}
}

// RunAction validates and executes one action and writes exactly one action
// log row for it. Failures are reported in the Outcome, never returned.
func (r *Runner) RunAction(
	ctx context.Context,
	tenantID int64,
	runID string,
	position int,
	actionType string,
	args json.RawMessage,
	eventData map[string]any,
) Outcome {
	started := r.clock.Now()

	execCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	err := r.execute(execCtx, tenantID, runID, actionType, args, eventData)
	if err != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("action timed out after %s", r.Timeout)
	}

	out := Outcome{Status: model.ActionSucceeded}
	if err != nil {
		out = Outcome{Status: model.ActionFailed, Error: err.Error()}
	}
	duration := r.clock.Now().Sub(started)

	entry := model.AutomationActionLog{
		ID:         util.NewID(started),
		RunID:      runID,
		TenantID:   tenantID,
		Position:   position,
		ActionType: actionType,
		Args:       logArgs(args),
		Status:     out.Status,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  started,
	}
	if out.Error != "" {
		msg := out.Error
		entry.Error = &msg
	}

	// the log row must land even if the caller's context is already done
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	if lerr := r.logs.Insert(logCtx, entry); lerr != nil {
		r.logger.Error("action_log_write_failed",
			zap.String("run_id", runID),
			zap.Int("position", position),
			zap.String("action_type", actionType),
			zap.Error(lerr),
		)
		out = Outcome{Status: model.ActionFailed, Error: "action log write failed: " + lerr.Error()}
	}

	label := actionType
	if !Kind(actionType).Valid() {
		label = "unknown"
	}
	metrics.ActionsTotal.WithLabelValues(label, out.Status.String()).Inc()
	metrics.ActionDuration.WithLabelValues(label).Observe(duration.Seconds())

	if !out.Succeeded() {
		r.logger.Warn("action_failed",
			zap.Int64("tenant_id", tenantID),
			zap.String("run_id", runID),
			zap.Int("position", position),
			zap.String("action_type", actionType),
			zap.String("error", out.Error),
		)
	}
	return out
}

func (r *Runner) execute(ctx context.Context, tenantID int64, runID, actionType string, args json.RawMessage, eventData map[string]any) error {
	act, err := Parse(actionType, args)
	if err != nil {
		return err
	}

	patientID := strings.TrimSpace(act.patientRef())
	if patientID == "" {
		patientID = patientFromEvent(eventData)
	}
	if patientID == "" {
		return validationError("patientId is required (in args or event data)")
	}

	patient, err := r.patients.GetByID(ctx, tenantID, patientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}
	if patient == nil {
		return notFound("Patient", patientID)
	}

	now := r.clock.Now()
	switch a := act.(type) {
	case CreateNote:
		return r.createNote(ctx, patient, runID, a, eventData, now)
	case DraftMessage:
		return r.draftMessage(ctx, patient, runID, a, eventData, now)
	case SendMessage:
		return r.sendMessage(ctx, patient, runID, a, eventData, now)
	case UpdatePatient:
		return r.updatePatient(ctx, patient, a, now)
	default:
		return &Failure{kind: ErrUnknownAction, msg: "Unknown action type: " + actionType}
	}
}

func (r *Runner) createNote(ctx context.Context, p *model.Patient, runID string, a CreateNote, data map[string]any, now time.Time) error {
	note := model.Note{
		ID:        util.NewID(now),
		TenantID:  p.TenantID,
		PatientID: p.ID,
		Body:      Render(a.Text, data),
		Source:    "automation:" + runID,
		CreatedAt: now,
	}
	if err := r.notes.Insert(ctx, note); err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return nil
}

func (r *Runner) draftMessage(ctx context.Context, p *model.Patient, runID string, a DraftMessage, data map[string]any, now time.Time) error {
	recipient, _ := r.recipientFor(p, a.Channel)
	msg := model.Message{
		ID:        util.NewID(now),
		TenantID:  p.TenantID,
		PatientID: p.ID,
		RunID:     runID,
		Channel:   a.Channel,
		Recipient: recipient,
		Body:      Render(a.Body, data),
		Status:    model.MessageDraft,
		CreatedAt: now,
	}
	if err := r.messages.Insert(ctx, msg); err != nil {
		return fmt.Errorf("draft message: %w", err)
	}
	return nil
}

func (r *Runner) sendMessage(ctx context.Context, p *model.Patient, runID string, a SendMessage, data map[string]any, now time.Time) error {
	if r.channel == nil {
		return errors.New("no channel adapter configured")
	}

	recipient := strings.TrimSpace(Render(a.Recipient, data))
	if recipient == "" {
		var ok bool
		if recipient, ok = r.recipientFor(p, a.Channel); !ok {
			return validationError(fmt.Sprintf("patient %s has no %s recipient", p.ID, a.Channel))
		}
	} else if a.Channel == model.ChannelSMS {
		recipient = util.NormalizePhone(recipient, r.CountryCode)
	}

	msg := model.Message{
		ID:        util.NewID(now),
		TenantID:  p.TenantID,
		PatientID: p.ID,
		RunID:     runID,
		Channel:   a.Channel,
		Recipient: recipient,
		Body:      Render(a.Body, data),
		Status:    model.MessageSent,
		CreatedAt: now,
	}

	err := r.channel.Send(ctx, model.OutboundMessage{
		ID:        msg.ID,
		TenantID:  msg.TenantID,
		Channel:   msg.Channel,
		Recipient: msg.Recipient,
		Body:      msg.Body,
	})
	if err != nil {
		return fmt.Errorf("send %s: %w", a.Channel, err)
	}
	if err := r.messages.Insert(ctx, msg); err != nil {
		return fmt.Errorf("record sent message: %w", err)
	}
	return nil
}

func (r *Runner) updatePatient(ctx context.Context, p *model.Patient, a UpdatePatient, now time.Time) error {
	if err := r.patients.Update(ctx, p.TenantID, p.ID, a.update(), now); err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (r *Runner) recipientFor(p *model.Patient, ch model.Channel) (string, bool) {
	switch ch {
	case model.ChannelSMS:
		if p.Phone != nil && *p.Phone != "" {
			return util.NormalizePhone(*p.Phone, r.CountryCode), true
		}
	case model.ChannelEmail:
		if p.Email != nil && *p.Email != "" {
			return strings.ToLower(strings.TrimSpace(*p.Email)), true
		}
	}
	return "", false
}

func logArgs(args json.RawMessage) json.RawMessage {
	if !json.Valid(args) {
		return json.RawMessage("{}")
	}
	return args
}

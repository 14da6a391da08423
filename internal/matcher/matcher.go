// Package matcher reacts to bus events: it selects the tenant's enabled
// rules for the event, evaluates their conditions and executes the actions of
// every matching rule as one automation run.
package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/action"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/condition"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/metrics"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/util"
)

const (
	finishTimeout   = 5 * time.Second
	maxErrorSummary = 2000
)

// ActionRunner is satisfied by *action.Runner.
type ActionRunner interface {
	RunAction(ctx context.Context, tenantID int64, runID string, position int, actionType string, args json.RawMessage, eventData map[string]any) action.Outcome
}

type Matcher struct {
	rules  repository.RulesRepository
	runs   repository.RunsRepository
	runner ActionRunner
	clock  clock.Clock
	logger *zap.Logger

	// Concurrency bounds how many matching rules run in parallel for one event.
	Concurrency int
	// Dedup, when set, turns redelivery of the same (event, rule) pair into a no-op.
	Dedup Deduper
}

func New(rules repository.RulesRepository, runs repository.RunsRepository, runner ActionRunner, clk clock.Clock, log *zap.Logger) *Matcher {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if log == nil {
		log = logger.L()
	}
	return &Matcher{
		rules:       rules,
		runs:        runs,
		runner:      runner,
		clock:       clk,
		logger:      log,
		Concurrency: 4,
	}
}

type compiledRule struct {
	rule    model.AutomationRule
	cond    condition.Condition
	actions []model.RuleAction
}

// HandleEvent runs every enabled rule of ev's tenant whose trigger is
// ev.EventName and whose condition matches ev.Payload. It returns the
// finished runs in rule order. Action failures only show up in run status;
// errors are returned for rule loading and run persistence.
func (m *Matcher) HandleEvent(ctx context.Context, ev model.BusEvent) ([]model.AutomationRun, error) {
	rules, err := m.rules.ListEnabled(ctx, ev.TenantID, ev.EventName)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	var matched []compiledRule
	for _, r := range rules {
		// the store query already filters; this keeps the invariant local
		if r.TenantID != ev.TenantID || r.TriggerEvent != ev.EventName || !r.Enabled {
			continue
		}
		cr, err := compile(r)
		if err != nil {
			m.logger.Error("rule_invalid",
				zap.Int64("tenant_id", r.TenantID),
				zap.String("rule_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		if !condition.Evaluate(cr.cond, ev.Payload) {
			continue
		}
		if m.alreadyHandled(ctx, ev, r.ID) {
			continue
		}
		matched = append(matched, cr)
	}
	if len(matched) == 0 {
		return nil, nil
	}

	runs := make([]*model.AutomationRun, len(matched))
	var g errgroup.Group
	limit := m.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, cr := range matched {
		i, cr := i, cr
		g.Go(func() error {
			run, err := m.execute(ctx, ev, cr)
			runs[i] = run
			return err
		})
	}
	gerr := g.Wait()

	out := make([]model.AutomationRun, 0, len(runs))
	for _, r := range runs {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, gerr
}

func compile(r model.AutomationRule) (compiledRule, error) {
	cond, err := condition.Parse(r.Conditions)
	if err != nil {
		return compiledRule{}, err
	}
	var actions []model.RuleAction
	if len(r.Actions) > 0 {
		if err := json.Unmarshal(r.Actions, &actions); err != nil {
			return compiledRule{}, fmt.Errorf("decode actions: %w", err)
		}
	}
	return compiledRule{rule: r, cond: cond, actions: actions}, nil
}

func (m *Matcher) alreadyHandled(ctx context.Context, ev model.BusEvent, ruleID string) bool {
	eventID := ev.SourceEventID()
	if m.Dedup == nil || eventID == "" {
		return false
	}
	first, err := m.Dedup.Claim(ctx, eventID, ruleID)
	if err != nil {
		// fail open: a duplicate run is acceptable, a lost one is not
		m.logger.Warn("dedup_claim_failed", zap.String("event_id", eventID), zap.String("rule_id", ruleID), zap.Error(err))
		return false
	}
	if !first {
		metrics.EventsConsumedTotal.WithLabelValues("duplicate").Inc()
		m.logger.Info("rule_run_deduplicated", zap.String("event_id", eventID), zap.String("rule_id", ruleID))
	}
	return !first
}

// releaseClaim undoes alreadyHandled for a rule whose run could not be created.
func (m *Matcher) releaseClaim(ctx context.Context, ev model.BusEvent, ruleID string) {
	eventID := ev.SourceEventID()
	if m.Dedup == nil || eventID == "" {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := m.Dedup.Release(rctx, eventID, ruleID); err != nil {
		m.logger.Warn("dedup_release_failed", zap.String("event_id", eventID), zap.String("rule_id", ruleID), zap.Error(err))
	}
}

// execute creates the run, invokes every action in order (continuing past
// failures) and records the terminal status once.
func (m *Matcher) execute(ctx context.Context, ev model.BusEvent, cr compiledRule) (*model.AutomationRun, error) {
	started := m.clock.Now()
	run := model.AutomationRun{
		ID:        util.NewID(started),
		TenantID:  ev.TenantID,
		RuleID:    cr.rule.ID,
		EventID:   ev.SourceEventID(),
		EventName: ev.EventName,
		Status:    model.RunRunning,
		StartedAt: started,
	}
	if err := m.runs.Create(ctx, run); err != nil {
		m.releaseClaim(ctx, ev, cr.rule.ID)
		return nil, fmt.Errorf("create run for rule %s: %w", cr.rule.ID, err)
	}

	var failures []string
	for i, a := range cr.actions {
		out := m.runner.RunAction(ctx, ev.TenantID, run.ID, i, a.Type, a.Args, ev.Payload)
		if !out.Succeeded() {
			failures = append(failures, fmt.Sprintf("action %d (%s): %s", i, a.Type, out.Error))
		}
	}

	run.Status = model.RunSucceeded
	if len(failures) > 0 {
		run.Status = model.RunFailed
		summary := util.Truncate(strings.Join(failures, "; "), maxErrorSummary)
		run.Error = &summary
	}
	finished := m.clock.Now()
	run.FinishedAt = &finished

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := m.runs.Finish(fctx, run.TenantID, run.ID, run.Status, run.Error, finished); err != nil {
		if errors.Is(err, repository.ErrRunAlreadyFinished) {
			m.logger.Warn("run_already_finished", zap.String("run_id", run.ID))
			return &run, nil
		}
		return &run, fmt.Errorf("finish run %s: %w", run.ID, err)
	}

	metrics.RunsTotal.WithLabelValues(run.Status.String()).Inc()
	m.logger.Info("automation_run_finished",
		zap.Int64("tenant_id", run.TenantID),
		zap.String("rule_id", run.RuleID),
		zap.String("run_id", run.ID),
		zap.String("event_id", run.EventID),
		zap.String("status", run.Status.String()),
		zap.Int("actions", len(cr.actions)),
		zap.Int("failed_actions", len(failures)),
	)
	return &run, nil
}

/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package episode implements the Episode Engine (C4): the
// RESET -> SETUP -> OBSERVE -> PREDICT -> ACT_AND_OBSERVE -> EVALUATE
// state machine that drives one task to completion (§4.4).
//
// The teacher drives an analogous phase machine through repeated
// Reconcile calls against a persisted CRD (handlePending/handleRunning/
// handleWaiting in internal/controller/agenttask_controller.go). An
// episode has no external controller re-invoking it, so the phases here
// run as a straight-line loop within one goroutine instead of a
// requeue-driven state machine, but the phase-dispatch shape — one
// handler per phase, a single record of "what phase are we in and why" —
// is kept.
package episode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/legatus-arena/legatus/internal/action"
	"github.com/legatus-arena/legatus/internal/agent"
	"github.com/legatus-arena/legatus/internal/budget"
	"github.com/legatus-arena/legatus/internal/evaluator"
	"github.com/legatus-arena/legatus/internal/guestclient"
	"github.com/legatus-arena/legatus/internal/health"
	"github.com/legatus-arena/legatus/internal/observation"
	"github.com/legatus-arena/legatus/internal/task"
	"github.com/legatus-arena/legatus/internal/telemetry"
	"github.com/legatus-arena/legatus/internal/trajectory"
	"github.com/legatus-arena/legatus/internal/vmcontrol"
)

// Phase names one state of the episode state machine, for logging and for
// the Outcome recorded in the trajectory summary.
type Phase string

const (
	PhaseReset         Phase = "reset"
	PhaseSetup         Phase = "setup"
	PhaseObserve       Phase = "observe"
	PhasePredict       Phase = "predict"
	PhaseActAndObserve Phase = "act_and_observe"
	PhaseEvaluate      Phase = "evaluate"
)

// Config bounds one episode's resource consumption (§4.4, §6).
type Config struct {
	MaxSteps       int
	WallClock      time.Duration
	SleepAfterExec time.Duration
	ReadyPollEvery time.Duration
	ReadyMaxPolls  int
}

// DefaultConfig mirrors the original tool's defaults.
var DefaultConfig = Config{
	MaxSteps:       15,
	WallClock:      30 * time.Minute,
	SleepAfterExec: 3 * time.Second,
	ReadyPollEvery: 5 * time.Second,
	ReadyMaxPolls:  20,
}

// Engine drives one episode at a time; construct one per worker slot.
type Engine struct {
	Guest   *guestclient.Client
	VM      *vmcontrol.Client
	Agent   agent.Predictor
	Kernel  *evaluator.Kernel
	Prices  *budget.PriceMap
	Ceiling budget.Ceiling
	Model   string
	Config  Config
	Log     logr.Logger
}

// stuckSignal accumulates the behavioral history the health detector needs
// across steps of one episode.
type stuckSignal struct {
	actionTags    []string
	promptHashes  []string
	lastProgress  time.Time
}

// Run drives desc from RESET through EVALUATE (or an early terminal exit)
// and writes every step durably to w. It returns the final summary; errors
// returned are episode-infrastructure failures (e.g. the recorder could not
// be opened), not task failures — a failed task still returns a Summary
// with Outcome set accordingly.
func (e *Engine) Run(ctx context.Context, desc task.Descriptor, w *trajectory.Writer) (trajectory.Summary, error) {
	log := e.Log.WithValues("domain", desc.Domain, "task", desc.ID)

	ctx, span := telemetry.Tracer.Start(ctx, "episode.Run")
	defer span.End()
	telemetry.EpisodesActive.WithLabelValues("").Inc()
	defer telemetry.EpisodesActive.WithLabelValues("").Dec()
	start := time.Now()

	cfg := e.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig
	}
	if cfg.WallClock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.WallClock)
		defer cancel()
	}

	usage := budget.Usage{}
	outcome := "completed"
	score := 0.0
	infeasible := false

	defer func() {
		telemetry.EpisodesTotal.WithLabelValues(desc.Domain, outcome).Inc()
		telemetry.EpisodeDuration.Observe(time.Since(start).Seconds())
		telemetry.EpisodeScore.Observe(score)
		telemetry.EmitEpisodeEvent(ctx, "legatus.episode.finished", desc.Domain, desc.ID, "", telemetry.TaskAttrs(desc.Domain, desc.ID, "")...)
	}()

	lastStep := 0

	if err := e.phaseReset(ctx, desc, log); err != nil {
		outcome = "error"
		return e.finish(w, desc, lastStep, usage, 0, 0, false, outcome, err)
	}

	if err := e.phaseSetup(ctx, desc, log); err != nil {
		outcome = "error"
		return e.finish(w, desc, lastStep, usage, 0, 0, false, outcome, err)
	}

	var healthCfg health.Config
	if desc.Health != nil {
		healthCfg = health.Resolve(health.DefaultConfig, desc.Health.ToolDiversityMin, desc.Health.MaxRepeatedPrompts, desc.Health.StatusStaleSeconds, desc.Health.Action)
	} else {
		healthCfg = health.DefaultConfig
	}
	signal := stuckSignal{lastProgress: time.Now()}
	var lastCost float64
	var lastSentinel action.Sentinel

	for step := 1; step <= cfg.MaxSteps; step++ {
		lastStep = step

		select {
		case <-ctx.Done():
			outcome = "budget_exceeded"
			return e.finish(w, desc, step-1, usage, lastCost, 0, false, outcome, nil)
		default:
		}

		rec := trajectory.NewRecord(step)

		obs, err := e.phaseObserve(ctx, desc, log)
		if err != nil {
			rec.Error = err.Error()
			_ = w.WriteStep(rec)
			outcome = "error"
			return e.finish(w, desc, step, usage, lastCost, 0, false, outcome, err)
		}
		if obs.IsNull() {
			log.Info("null observation, retrying in 5s", "step", step)
			rec.Error = "null observation"
			_ = w.WriteStep(rec)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}
		if path, _, err := trajectory.StoreValue(w.Dir(), fmt.Sprintf("step_%d_screenshot", step), obs.Screenshot); err == nil && path != "" {
			rec.Observation = &trajectory.StepObservation{
				ScreenshotFile: path,
				Title:          obs.ForegroundTitle,
				VisibleWindows: obs.VisibleWindowTitles,
				Clipboard:      obs.Clipboard,
			}
		}

		pred, err := e.phasePredict(ctx, obs, log)
		if err != nil {
			rec.Error = err.Error()
			_ = w.WriteStep(rec)
			outcome = "error"
			return e.finish(w, desc, step, usage, lastCost, 0, false, outcome, err)
		}
		rec.Logs = pred.Logs
		usage.Add(pred.Usage.PromptTokens, pred.Usage.CompletionTokens)
		rec.Metrics = &trajectory.StepMetrics{PromptTokens: pred.Usage.PromptTokens, CompletionTokens: pred.Usage.CompletionTokens}
		if e.Prices != nil {
			if cost, err := e.Prices.CalculateCost(e.Model, usage.InputTokens, usage.OutputTokens); err == nil {
				rec.Metrics.CostUSD = cost
				lastCost = cost
				telemetry.TaskCostUSD.Observe(cost)
			}
		}

		if e.Ceiling.Exceeded(usage, rec.Metrics.CostUSD) {
			log.Info("budget ceiling exceeded, ending episode", "step", step)
			rec.Error = "budget ceiling exceeded"
			_ = w.WriteStep(rec)
			telemetry.BudgetExceededTotal.WithLabelValues(desc.Domain).Inc()
			outcome = "budget_exceeded"
			break
		}

		done, sentinel, actErr := e.phaseActAndObserve(ctx, pred, &rec, &signal)
		telemetry.StepsTotal.WithLabelValues(desc.Domain).Inc()
		if actErr != nil {
			rec.Error = actErr.Error()
		}
		if err := w.WriteStep(rec); err != nil {
			return e.finish(w, desc, step, usage, lastCost, 0, false, "error", err)
		}

		hs := health.Check(healthCfg, signal.actionTags, signal.promptHashes, time.Since(signal.lastProgress).Seconds())
		if hs.IsStuck {
			telemetry.StuckDetectedTotal.WithLabelValues(healthCfg.Action, desc.Domain).Inc()
			log.Info("stuck episode detected", "reason", hs.Reason, "action", healthCfg.Action)
			if healthCfg.Action == "fail" {
				outcome = "stuck"
				break
			}
		}

		if done {
			rec.Sentinel = string(sentinel)
			lastSentinel = sentinel
			if sentinel == action.SentinelFail {
				outcome = "error"
			}
			break
		}

		if cfg.SleepAfterExec > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(cfg.SleepAfterExec):
			}
		}
	}

	out := e.phaseEvaluate(ctx, desc, log, lastSentinel == action.SentinelFail)
	score = out.Score
	infeasible = out.Infeasible

	return e.finish(w, desc, lastStep, usage, lastCost, score, infeasible, outcome, nil)
}

// finish writes the final Summary and returns it alongside any
// infrastructure error that cut the episode short.
func (e *Engine) finish(w *trajectory.Writer, desc task.Descriptor, steps int, usage budget.Usage, cost float64, score float64, infeasible bool, outcome string, runErr error) (trajectory.Summary, error) {
	if outcome == "" {
		outcome = "completed"
	}
	if runErr != nil {
		outcome = "error"
	}
	summary := trajectory.Summary{
		TaskID:           desc.ID,
		Domain:           desc.Domain,
		Score:            score,
		Infeasible:       infeasible,
		TotalSteps:       steps,
		TotalPromptToks:  usage.InputTokens,
		TotalCompletToks: usage.OutputTokens,
		TotalCostUSD:     cost,
		Outcome:          outcome,
	}
	if err := w.WriteResult(summary); err != nil {
		return summary, fmt.Errorf("episode: write result: %w", err)
	}
	return summary, runErr
}

// phaseReset restores the VM snapshot (if locally controlled) and waits for
// the guest agent to report ready (§4.4 RESET).
func (e *Engine) phaseReset(ctx context.Context, desc task.Descriptor, log logr.Logger) error {
	log = log.WithValues("phase", PhaseReset)
	if e.VM != nil && desc.Snapshot != "" {
		if err := e.VM.LoadVM(desc.Snapshot); err != nil {
			return fmt.Errorf("reset: load snapshot %q: %w", desc.Snapshot, err)
		}
	} else {
		// No local hypervisor control channel (a remote/cloud VM): best-effort
		// substitute for snapshot restore is asking the guest to tear down the
		// previous task's windows (§4.4 RESET).
		if err := e.Guest.Setup(ctx, "close_all", nil); err != nil {
			log.Error(err, "close_all best-effort reset failed, continuing")
		}
	}
	if !e.Guest.WaitReady(ctx, e.Config.ReadyPollEvery, e.Config.ReadyMaxPolls) {
		return fmt.Errorf("reset: guest agent never reported ready")
	}
	if err := e.Agent.Reset(ctx, desc.Instruction); err != nil {
		return fmt.Errorf("reset: agent reset: %w", err)
	}
	log.V(1).Info("reset complete")
	return nil
}

// phaseSetup runs every config directive against the guest (§4.4 SETUP).
func (e *Engine) phaseSetup(ctx context.Context, desc task.Descriptor, log logr.Logger) error {
	log = log.WithValues("phase", PhaseSetup)
	for _, d := range desc.Config {
		var payload map[string]interface{}
		if len(d.Payload) > 0 {
			_ = json.Unmarshal(d.Payload, &payload)
		}
		if err := e.Guest.Setup(ctx, d.Type, payload); err != nil {
			log.Error(err, "setup directive failed, continuing", "directive", d.Type)
		}
	}
	log.V(1).Info("setup complete", "directives", len(desc.Config))
	return nil
}

// phaseObserve assembles the composite observation (§4.4 OBSERVE).
func (e *Engine) phaseObserve(ctx context.Context, desc task.Descriptor, log logr.Logger) (observation.Observation, error) {
	obs := observation.Observation{Instruction: desc.Instruction}

	shot, err := e.Guest.Screenshot(ctx)
	if err != nil {
		log.Error(err, "screenshot fetch failed")
		return obs, nil // a single failed field yields a partial, non-null observation
	}
	obs.Screenshot = shot

	win, err := e.Guest.ObsWinagent(ctx)
	if err == nil {
		obs.ForegroundTitle = win.ForegroundTitle
		obs.ForegroundRect = observation.Rect{X: win.ForegroundRect[0], Y: win.ForegroundRect[1],
			Width: win.ForegroundRect[2] - win.ForegroundRect[0], Height: win.ForegroundRect[3] - win.ForegroundRect[1]}
		obs.Clipboard = win.Clipboard
		obs.HumanInput = win.HumanInput
		if win.VisibleWindows != "" {
			obs.VisibleWindowTitles = strings.Split(win.VisibleWindows, "\n")
		}
	}

	if tree, err := e.Guest.Accessibility(ctx, "uia"); err == nil {
		obs.AccessibilityTree = tree
	}

	return obs, nil
}

// phasePredict hands the observation to the agent (§4.4 PREDICT).
func (e *Engine) phasePredict(ctx context.Context, obs observation.Observation, log logr.Logger) (agent.Prediction, error) {
	pred, err := e.Agent.Predict(ctx, obs)
	if err != nil {
		return agent.Prediction{}, fmt.Errorf("predict: %w", err)
	}
	return pred, nil
}

// waitSentinelDelay is how long a WAIT sentinel pauses before the next
// step, matching the original tool's step(pause=0.5) default.
const waitSentinelDelay = 500 * time.Millisecond

// phaseActAndObserve dispatches every action in order, updating the guest
// facade if requested, and reports whether a terminal sentinel ended the
// episode (§4.4 ACT_AND_OBSERVE). Only FAIL/DONE are terminal; WAIT sleeps
// and lets the step loop continue.
func (e *Engine) phaseActAndObserve(ctx context.Context, pred agent.Prediction, rec *trajectory.Record, signal *stuckSignal) (done bool, sentinel action.Sentinel, err error) {
	if pred.Update != nil {
		if uerr := e.Guest.UpdateComputer(ctx, *pred.Update); uerr != nil {
			telemetry.GuestTransportFaultsTotal.WithLabelValues("/update_computer").Inc()
		}
	}

	for _, a := range pred.Actions {
		if a.IsSentinel() {
			rec.ToolCalls = append(rec.ToolCalls, trajectory.ToolCall{Space: "sentinel", Payload: a.Sentinel})
			signal.lastProgress = time.Now()
			if a.Sentinel == action.SentinelWait {
				select {
				case <-ctx.Done():
					return false, "", ctx.Err()
				case <-time.After(waitSentinelDelay):
				}
				continue
			}
			return true, a.Sentinel, nil
		}

		rec.ToolCalls = append(rec.ToolCalls, trajectory.ToolCall{Space: string(a.Space), Payload: actionPayload(a)})
		signal.actionTags = append(signal.actionTags, string(a.Space))
		signal.promptHashes = append(signal.promptHashes, pred.Logs)

		if derr := e.Guest.Dispatch(ctx, a); derr != nil {
			telemetry.GuestTransportFaultsTotal.WithLabelValues("dispatch").Inc()
			return false, "", derr
		}
		signal.lastProgress = time.Now()
	}
	return false, "", nil
}

// phaseEvaluate runs the task's evaluator against the guest environment
// (§4.4 EVALUATE). agentFailed reports whether the episode ended on a FAIL
// sentinel, the only condition under which an "infeasible" evaluator is
// allowed to score 1.0 (§8 scenario 1).
func (e *Engine) phaseEvaluate(ctx context.Context, desc task.Descriptor, log logr.Logger, agentFailed bool) evaluator.Outcome {
	if err := desc.Evaluator.Validate(); err != nil {
		log.Error(err, "invalid evaluator, scoring zero")
		return evaluator.Outcome{Score: 0}
	}
	if desc.Evaluator.IsInfeasible() {
		if agentFailed {
			return evaluator.Outcome{Score: 1.0, Infeasible: true}
		}
		return evaluator.Outcome{Score: 0, Infeasible: true}
	}
	if agentFailed {
		// The agent gave up on a task it was not asked to recognize as
		// infeasible: score 0 without spending a single guest getter call
		// (§4.4 rule 2).
		return evaluator.Outcome{Score: 0}
	}
	memo := evaluator.NewMemo()
	return e.Kernel.Evaluate(ctx, desc.Evaluator, e.Guest, memo)
}

func actionPayload(a action.Action) interface{} {
	if a.Computer13 != nil {
		return a.Computer13
	}
	return a.Code
}

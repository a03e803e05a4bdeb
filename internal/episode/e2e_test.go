//go:build e2e

/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package episode_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/legatus-arena/legatus/internal/action"
	"github.com/legatus-arena/legatus/internal/agent"
	"github.com/legatus-arena/legatus/internal/episode"
	"github.com/legatus-arena/legatus/internal/evaluator"
	"github.com/legatus-arena/legatus/internal/guestclient"
	"github.com/legatus-arena/legatus/internal/task"
	"github.com/legatus-arena/legatus/internal/trajectory"
)

// literalPayload is the decode target for the "literal" getter this suite
// registers: a getter with no guest round-trip at all, standing in for
// whichever of the representative §4.5 getters a real task would name.
type literalPayload struct {
	Value string `json:"value"`
}

func literalGetter(_ context.Context, spec task.GetterSpec, _ evaluator.Env) (interface{}, error) {
	var p literalPayload
	if len(spec.Payload) > 0 {
		_ = json.Unmarshal(spec.Payload, &p)
	}
	return p.Value, nil
}

// newFakeGuestServer serves the subset of the §4.1 guest contract a full
// RESET->EVALUATE run touches: probe, setup, screenshot, the composite
// window observation, and accessibility.
func newFakeGuestServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/probe", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/setup/close_all", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(guestclient.ExecuteResult{ReturnCode: 0})
	})
	mux.HandleFunc("/screenshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/obs_winagent", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(guestclient.CompositeObservation{
			ForegroundTitle: "Notepad",
			ForegroundRect:  [4]int{0, 0, 800, 600},
		})
	})
	mux.HandleFunc("/accessibility", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<tree/>"))
	})
	return httptest.NewServer(mux)
}

var _ = Describe("episode engine", func() {
	var (
		server *httptest.Server
		dir    string
	)

	BeforeEach(func() {
		server = newFakeGuestServer()
		var err error
		dir, err = os.MkdirTemp("", "legatus-episode-e2e-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
		_ = os.RemoveAll(dir)
	})

	It("drives a scripted agent through RESET..EVALUATE and scores a match", func() {
		guest := guestclient.New(server.URL, logr.Discard())

		registry := evaluator.NewRegistry()
		registry.RegisterGetter("literal", literalGetter)

		fixture := agent.NewFixture(agent.Prediction{
			Actions: []action.Action{{
				Space: action.SpaceComputer13,
				Computer13: &action.Computer13{
					ActionType: action.Click,
					Parameters: map[string]interface{}{"x": 10, "y": 20},
				},
			}},
			Logs: "clicking the notepad icon",
		})

		eng := &episode.Engine{
			Guest:  guest,
			Agent:  fixture,
			Kernel: evaluator.NewKernel(registry),
			Model:  "test-model",
			Config: episode.Config{MaxSteps: 5, ReadyPollEvery: 0, ReadyMaxPolls: 1},
			Log:    logr.Discard(),
		}

		desc := task.Descriptor{
			ID:          "open-note",
			Domain:      "notepad",
			Instruction: "type hello into notepad",
			Evaluator: task.Evaluator{
				Func:     task.ScalarOrList[string]{Items: []string{"exact_match"}},
				Result:   task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{{Type: "literal", Payload: json.RawMessage(`{"type":"literal","value":"hello"}`)}}},
				Expected: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{{Type: "literal", Payload: json.RawMessage(`{"type":"literal","value":"hello"}`)}}},
			},
		}

		w, err := trajectory.NewWriter(dir, logr.Discard())
		Expect(err).NotTo(HaveOccurred())

		summary, runErr := eng.Run(context.Background(), desc, w)
		Expect(w.Close()).To(Succeed())

		Expect(runErr).NotTo(HaveOccurred())
		Expect(summary.Score).To(Equal(1.0))
		Expect(summary.Outcome).To(Equal("completed"))
		Expect(summary.TotalSteps).To(BeNumerically(">=", 1))

		Expect(dir + "/result.txt").To(BeAnExistingFile())
		Expect(dir + "/traj.jsonl").To(BeAnExistingFile())
		Expect(dir + "/traj.html").To(BeAnExistingFile())
	})

	It("scores zero when the literal getters disagree", func() {
		guest := guestclient.New(server.URL, logr.Discard())

		registry := evaluator.NewRegistry()
		registry.RegisterGetter("literal", literalGetter)

		fixture := agent.NewFixture() // immediately emits DONE

		eng := &episode.Engine{
			Guest:  guest,
			Agent:  fixture,
			Kernel: evaluator.NewKernel(registry),
			Model:  "test-model",
			Config: episode.Config{MaxSteps: 3, ReadyPollEvery: 0, ReadyMaxPolls: 1},
			Log:    logr.Discard(),
		}

		desc := task.Descriptor{
			ID:          "mismatch",
			Domain:      "notepad",
			Instruction: "type hello into notepad",
			Evaluator: task.Evaluator{
				Func:     task.ScalarOrList[string]{Items: []string{"exact_match"}},
				Result:   task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{{Type: "literal", Payload: json.RawMessage(`{"type":"literal","value":"hello"}`)}}},
				Expected: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{{Type: "literal", Payload: json.RawMessage(`{"type":"literal","value":"goodbye"}`)}}},
			},
		}

		w, err := trajectory.NewWriter(dir, logr.Discard())
		Expect(err).NotTo(HaveOccurred())

		summary, runErr := eng.Run(context.Background(), desc, w)
		Expect(w.Close()).To(Succeed())

		Expect(runErr).NotTo(HaveOccurred())
		Expect(summary.Score).To(Equal(0.0))
	})

	It("scores an infeasible task 1.0 only when the agent actually emits FAIL", func() {
		guest := guestclient.New(server.URL, logr.Discard())

		fixture := agent.NewFixture(agent.Prediction{
			Actions: []action.Action{{Sentinel: action.SentinelFail}},
			Logs:    "this task cannot be completed",
		})

		eng := &episode.Engine{
			Guest:  guest,
			Agent:  fixture,
			Kernel: evaluator.NewKernel(evaluator.NewRegistry()),
			Model:  "test-model",
			Config: episode.Config{MaxSteps: 3, ReadyPollEvery: 0, ReadyMaxPolls: 1},
			Log:    logr.Discard(),
		}

		desc := task.Descriptor{
			ID:          "unreachable-setting",
			Domain:      "notepad",
			Instruction: "turn on a setting that does not exist",
			Evaluator:   task.Evaluator{Func: task.ScalarOrList[string]{Items: []string{"infeasible"}}},
		}

		w, err := trajectory.NewWriter(dir, logr.Discard())
		Expect(err).NotTo(HaveOccurred())

		summary, runErr := eng.Run(context.Background(), desc, w)
		Expect(w.Close()).To(Succeed())

		Expect(runErr).NotTo(HaveOccurred())
		Expect(summary.Score).To(Equal(1.0))
	})

	It("scores an infeasible task 0.0 when the agent runs to DONE instead of FAIL", func() {
		guest := guestclient.New(server.URL, logr.Discard())

		fixture := agent.NewFixture() // immediately emits DONE

		eng := &episode.Engine{
			Guest:  guest,
			Agent:  fixture,
			Kernel: evaluator.NewKernel(evaluator.NewRegistry()),
			Model:  "test-model",
			Config: episode.Config{MaxSteps: 3, ReadyPollEvery: 0, ReadyMaxPolls: 1},
			Log:    logr.Discard(),
		}

		desc := task.Descriptor{
			ID:          "unreachable-setting-done",
			Domain:      "notepad",
			Instruction: "turn on a setting that does not exist",
			Evaluator:   task.Evaluator{Func: task.ScalarOrList[string]{Items: []string{"infeasible"}}},
		}

		w, err := trajectory.NewWriter(dir, logr.Discard())
		Expect(err).NotTo(HaveOccurred())

		summary, runErr := eng.Run(context.Background(), desc, w)
		Expect(w.Close()).To(Succeed())

		Expect(runErr).NotTo(HaveOccurred())
		Expect(summary.Score).To(Equal(0.0))
	})

	It("scores zero without calling the metric when the agent fails a feasible task", func() {
		guest := guestclient.New(server.URL, logr.Discard())

		registry := evaluator.NewRegistry()
		called := false
		registry.RegisterGetter("literal", func(ctx context.Context, spec task.GetterSpec, env evaluator.Env) (interface{}, error) {
			called = true
			return literalGetter(ctx, spec, env)
		})

		fixture := agent.NewFixture(agent.Prediction{
			Actions: []action.Action{{Sentinel: action.SentinelFail}},
			Logs:    "giving up",
		})

		eng := &episode.Engine{
			Guest:  guest,
			Agent:  fixture,
			Kernel: evaluator.NewKernel(registry),
			Model:  "test-model",
			Config: episode.Config{MaxSteps: 3, ReadyPollEvery: 0, ReadyMaxPolls: 1},
			Log:    logr.Discard(),
		}

		desc := task.Descriptor{
			ID:          "rename-a-file",
			Domain:      "notepad",
			Instruction: "rename the file on the desktop",
			Evaluator: task.Evaluator{
				Func:     task.ScalarOrList[string]{Items: []string{"exact_match"}},
				Result:   task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{{Type: "literal", Payload: json.RawMessage(`{"value":"a"}`)}}},
				Expected: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{{Type: "literal", Payload: json.RawMessage(`{"value":"a"}`)}}},
			},
		}

		w, err := trajectory.NewWriter(dir, logr.Discard())
		Expect(err).NotTo(HaveOccurred())

		summary, runErr := eng.Run(context.Background(), desc, w)
		Expect(w.Close()).To(Succeed())

		Expect(runErr).NotTo(HaveOccurred())
		Expect(summary.Score).To(Equal(0.0))
		Expect(called).To(BeFalse(), "the metric must not run once the agent has already failed")
	})

	It("sleeps through WAIT instead of ending the episode", func() {
		guest := guestclient.New(server.URL, logr.Discard())

		registry := evaluator.NewRegistry()
		registry.RegisterGetter("literal", literalGetter)

		fixture := agent.NewFixture(
			agent.Prediction{Actions: []action.Action{{Sentinel: action.SentinelWait}}, Logs: "waiting for the window to load"},
			agent.Prediction{Actions: []action.Action{{Sentinel: action.SentinelDone}}, Logs: "done"},
		)

		eng := &episode.Engine{
			Guest:  guest,
			Agent:  fixture,
			Kernel: evaluator.NewKernel(registry),
			Model:  "test-model",
			Config: episode.Config{MaxSteps: 5, ReadyPollEvery: 0, ReadyMaxPolls: 1},
			Log:    logr.Discard(),
		}

		desc := task.Descriptor{
			ID:          "wait-then-done",
			Domain:      "notepad",
			Instruction: "wait for the app, then stop",
			Evaluator: task.Evaluator{
				Func:     task.ScalarOrList[string]{Items: []string{"exact_match"}},
				Result:   task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{{Type: "literal", Payload: json.RawMessage(`{"type":"literal","value":"hello"}`)}}},
				Expected: task.ScalarOrList[task.GetterSpec]{Items: []task.GetterSpec{{Type: "literal", Payload: json.RawMessage(`{"type":"literal","value":"hello"}`)}}},
			},
		}

		w, err := trajectory.NewWriter(dir, logr.Discard())
		Expect(err).NotTo(HaveOccurred())

		summary, runErr := eng.Run(context.Background(), desc, w)
		Expect(w.Close()).To(Succeed())

		Expect(runErr).NotTo(HaveOccurred())
		Expect(summary.TotalSteps).To(BeNumerically(">=", 2))
		Expect(summary.Score).To(Equal(1.0))
	})
})

// Package orchestrator relays an agent run to the caller, executing the
// agent's query instruction on the caller's behalf and splicing the agent's
// follow-up turn into the same outbound stream.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/codeready-toolchain/agentrelay/pkg/config"
	"github.com/codeready-toolchain/agentrelay/pkg/events"
	"github.com/codeready-toolchain/agentrelay/pkg/masking"
	"github.com/codeready-toolchain/agentrelay/pkg/payload"
	"github.com/codeready-toolchain/agentrelay/pkg/query"
	"github.com/codeready-toolchain/agentrelay/pkg/sse"
)

// AgentClient opens agent event streams.
type AgentClient interface {
	RunAgent(ctx context.Context, body any) (io.ReadCloser, error)
}

// QueryExecutor runs instruction SQL for an identity.
type QueryExecutor interface {
	Execute(ctx context.Context, sql, identity string) (*query.Result, error)
}

// RunRequest is one inbound agent run.
type RunRequest struct {
	// Messages is the caller's conversation, relayed as-is.
	Messages []json.RawMessage

	// Identity scopes executed statements to a tenant. Empty disables
	// scoping.
	Identity string

	// RequestID correlates log lines. Optional.
	RequestID string
}

// errStopped means the consumer went away and nothing more can be sent.
var errStopped = errors.New("run consumer stopped")

// Orchestrator drives agent runs. It holds only read-only configuration and
// is safe for concurrent use; every run gets its own Session.
type Orchestrator struct {
	agent    AgentClient
	executor QueryExecutor
	model    *config.AgentModel
	toolName string
	masker   *masking.Service
	logger   *slog.Logger
}

// New creates an Orchestrator.
func New(agent AgentClient, executor QueryExecutor, model *config.AgentModel, toolName string, masker *masking.Service) *Orchestrator {
	return &Orchestrator{
		agent:    agent,
		executor: executor,
		model:    model,
		toolName: toolName,
		masker:   masker,
		logger:   slog.Default().With("component", "orchestrator"),
	}
}

// Run starts a run and returns its outbound events. The channel is closed
// after exactly one terminal event (done or error), or earlier if ctx is
// cancelled, in which case upstream streams are released and no terminal
// event is sent.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) <-chan sse.Event {
	out := make(chan sse.Event)

	logger := o.logger
	if req.RequestID != "" {
		logger = logger.With("request_id", req.RequestID)
	}
	s := newSession(req, logger)

	emit := func(ev sse.Event) error {
		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return errStopped
		}
	}

	go func() {
		defer close(out)
		o.run(ctx, s, emit)
	}()

	return out
}

// run executes the pipeline and turns any failure into the terminal error
// event.
func (o *Orchestrator) run(ctx context.Context, s *Session, emit func(sse.Event) error) {
	err := o.pipeline(ctx, s, emit)
	if err == nil {
		s.logger.Info("Agent run completed", "query_executed", s.Triggered())
		return
	}

	if errors.Is(err, errStopped) || ctx.Err() != nil {
		s.logger.Info("Agent run abandoned by caller", "phase", s.Phase())
		return
	}

	message := o.masker.MaskError(err)
	s.logger.Error("Agent run failed", "phase", s.Phase(), "error", message)
	_ = s.transition(PhaseDone)
	_ = emit(events.NewErrorEvent(message))
}

func (o *Orchestrator) pipeline(ctx context.Context, s *Session, emit func(sse.Event) error) error {
	instruction, err := o.streamPrimary(ctx, s, emit)
	if err != nil {
		return err
	}

	if instruction == nil {
		if err := s.transition(PhaseDone); err != nil {
			return err
		}
		return emit(events.NewDoneEvent())
	}

	if err := s.transition(PhaseExecutingQuery); err != nil {
		return err
	}
	history, err := o.executeQuery(ctx, s, *instruction, emit)
	if err != nil {
		return err
	}

	if err := s.transition(PhaseStreamingSecondary); err != nil {
		return err
	}
	if err := o.streamSecondary(ctx, s, history, emit); err != nil {
		return err
	}

	if err := s.transition(PhaseDone); err != nil {
		return err
	}
	return emit(events.NewDoneEvent())
}

// streamPrimary relays the first agent stream until its sentinel, its end,
// or the first query instruction. The triggering frame is not forwarded and
// the primary stream is closed once an instruction is found.
func (o *Orchestrator) streamPrimary(ctx context.Context, s *Session, emit func(sse.Event) error) (*payload.QueryInstruction, error) {
	stream, err := o.agent.RunAgent(ctx, o.model.RequestBody(s.history))
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	dec := sse.NewDecoder(stream)
	for {
		frame, ok := dec.Next()
		if !ok {
			break
		}
		if frame.IsDone() {
			return nil, nil
		}

		p := payload.Decode(frame.Data)
		if payload.ShouldSkip(frame.Event, p) {
			continue
		}

		if instruction, found := payload.ExtractInstruction(p); found {
			s.trigger(p, o.toolName)
			s.logger.Debug("Query instruction detected",
				"event", frame.Event,
				"has_preamble", instruction.HasPreamble(),
				"frame", s.redactedTrigger)
			return &instruction, nil
		}

		s.collect(p, o.toolName)
		if err := emit(sse.Event{Name: frame.Event, Data: p}); err != nil {
			return nil, err
		}
	}

	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("read agent stream: %w", err)
	}
	// A stream that ends without its sentinel is treated as complete.
	return nil, nil
}

// executeQuery runs the instruction, emits the synthetic events and
// returns the secondary call's history.
func (o *Orchestrator) executeQuery(ctx context.Context, s *Session, instruction payload.QueryInstruction, emit func(sse.Event) error) ([]json.RawMessage, error) {
	if instruction.HasPreamble() {
		if err := emit(events.NewPreambleEvent(instruction.Preamble)); err != nil {
			return nil, err
		}
	}

	result, err := o.executor.Execute(ctx, instruction.SQL, s.identity)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	if err := emit(events.NewTableResultEvent(result.Data)); err != nil {
		return nil, err
	}
	if err := emit(events.NewAssistantMessageEvent()); err != nil {
		return nil, err
	}

	return s.followUpHistory(o.toolName, result.Handle)
}

// streamSecondary relays the follow-up agent stream. Its sentinel is
// swallowed; the caller emits the single terminal event.
func (o *Orchestrator) streamSecondary(ctx context.Context, s *Session, history []json.RawMessage, emit func(sse.Event) error) error {
	stream, err := o.agent.RunAgent(ctx, o.model.RequestBody(history))
	if err != nil {
		return fmt.Errorf("follow-up agent run: %w", err)
	}
	defer stream.Close()

	dec := sse.NewDecoder(stream)
	for {
		frame, ok := dec.Next()
		if !ok {
			break
		}
		if frame.IsDone() {
			return nil
		}

		p := payload.Decode(frame.Data)
		if payload.ShouldSkip(frame.Event, p) {
			continue
		}
		if err := emit(sse.Event{Name: frame.Event, Data: p}); err != nil {
			return err
		}
	}

	if err := dec.Err(); err != nil {
		return fmt.Errorf("read follow-up stream: %w", err)
	}
	return nil
}

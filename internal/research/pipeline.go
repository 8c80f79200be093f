package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"scout/internal/logging"
)

// State identifies where a research run is in its lifecycle.
type State string

const (
	StateStart        State = "start"
	StateDecomposing  State = "decomposing"
	StateCollecting   State = "collecting"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateAborted      State = "aborted"
)

// Progress is a snapshot of a running pipeline, delivered to the
// ProgressFunc at every state transition. Results is populated once
// collection has finished.
type Progress struct {
	State   State
	Detail  string
	Results []SubtaskResult
}

// ProgressFunc receives pipeline state transitions. It is called from the
// pipeline goroutine, so implementations should return quickly.
type ProgressFunc func(Progress)

// QueryDecomposer breaks a topic into research subtasks.
type QueryDecomposer interface {
	Decompose(ctx context.Context, topic string) ([]Subtask, error)
}

// EvidenceCollector gathers evidence for decomposed subtasks.
type EvidenceCollector interface {
	Collect(ctx context.Context, topic string, subtasks []Subtask) []SubtaskResult
}

// ReportSynthesizer produces the final report from collected evidence.
type ReportSynthesizer interface {
	Synthesize(ctx context.Context, topic string, results []SubtaskResult) *Report
}

// Pipeline drives a research run through its stages. Decomposition is the
// only stage that can abort a run; after that, failures degrade the output
// instead of stopping it.
type Pipeline struct {
	decomposer  QueryDecomposer
	collector   EvidenceCollector
	synthesizer ReportSynthesizer
	cfg         Config
	onProgress  ProgressFunc
}

// NewPipeline wires the three stages together. The config is validated
// here so a malformed one is rejected before any run starts.
func NewPipeline(cfg Config, d QueryDecomposer, c EvidenceCollector, s ReportSynthesizer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if d == nil || c == nil || s == nil {
		return nil, fmt.Errorf("pipeline requires a decomposer, collector, and synthesizer")
	}
	return &Pipeline{decomposer: d, collector: c, synthesizer: s, cfg: cfg}, nil
}

// OnProgress registers a callback for state transitions. Call before Run.
func (p *Pipeline) OnProgress(fn ProgressFunc) {
	p.onProgress = fn
}

// Run executes one research run end to end and returns the report.
//
// An empty topic returns InvalidInputError. A decomposition failure
// returns AbortedError wrapping the DecompositionError. Any other
// trouble is absorbed into the report as partial or degraded output.
func (p *Pipeline) Run(ctx context.Context, topic string) (*Report, error) {
	runID := "run_" + uuid.New().String()[:8]
	log := logging.WithRunID(logging.CategoryPipeline, runID)
	audit := logging.AuditWithRun(runID)

	start := time.Now()
	log.Info("Research run starting for topic: %s", topic)
	audit.RunStart(topic)

	p.transition(Progress{State: StateDecomposing, Detail: "decomposing topic into subtasks"})
	audit.StageStart("decompose")
	stageStart := time.Now()
	subtasks, err := p.decomposer.Decompose(ctx, topic)
	audit.StageComplete("decompose", time.Since(stageStart), err == nil)
	if err != nil {
		p.transition(Progress{State: StateAborted, Detail: err.Error()})
		log.Error("Run aborted during decomposition: %v", err)
		audit.RunAbort(topic, err)

		var invalid *InvalidInputError
		if errors.As(err, &invalid) {
			return nil, err
		}
		return nil, &AbortedError{Topic: topic, Err: err}
	}
	log.Info("Decomposed into %d subtasks", len(subtasks))

	p.transition(Progress{State: StateCollecting, Detail: fmt.Sprintf("collecting evidence for %d subtasks", len(subtasks))})
	audit.StageStart("collect")
	stageStart = time.Now()
	results := p.collector.Collect(ctx, topic, subtasks)
	audit.StageComplete("collect", time.Since(stageStart), true)

	p.transition(Progress{State: StateSynthesizing, Detail: "synthesizing report", Results: results})
	audit.StageStart("synthesize")
	stageStart = time.Now()
	report := p.synthesizer.Synthesize(ctx, topic, results)
	audit.StageComplete("synthesize", time.Since(stageStart), !report.Degraded)

	p.transition(Progress{State: StateDone, Detail: "report ready", Results: results})
	log.Info("Run complete in %s: degraded=%v, references=%d", time.Since(start).Round(time.Millisecond), report.Degraded, len(report.References))
	audit.RunComplete(topic, time.Since(start), report.Degraded)
	return report, nil
}

func (p *Pipeline) transition(progress Progress) {
	if p.onProgress != nil {
		p.onProgress(progress)
	}
}

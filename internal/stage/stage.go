// SPDX-License-Identifier: MPL-2.0

package stage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"vvimage/internal/dag"
)

const (
	// StatePending means the stage has not started.
	StatePending State = iota
	// StateRunning means the stage is executing.
	StateRunning
	// StateCompleted means the stage published its output.
	StateCompleted
	// StateFailed means the stage returned an error.
	StateFailed
	// StateSkipped means the stage never ran because the build was aborted.
	StateSkipped
)

const workDirName = ".work"

var (
	// ErrDuplicateStage is returned by Add for a name already in use.
	ErrDuplicateStage = errors.New("duplicate stage")
	// ErrUnknownInput is returned by Run when a stage consumes an undeclared stage.
	ErrUnknownInput = errors.New("unknown stage input")
)

type (
	// State is the lifecycle state of a stage.
	State int

	// Inputs maps a producer stage name to its published output directory.
	Inputs map[string]string

	// Func builds a stage's output into workspace, an empty private
	// directory.
	Func func(ctx context.Context, in Inputs, workspace string) error

	// Stage is one node of the build graph.
	Stage struct {
		Name string
		// Inputs are the producer stages whose outputs this stage reads.
		Inputs []string
		Run    Func
	}

	// Error reports which stage failed.
	Error struct {
		Stage string
		Err   error
	}

	// Result records the outcome of a build.
	Result struct {
		// Outputs maps each completed stage to its published directory.
		Outputs map[string]string
		// States holds the final state of every stage.
		States map[string]State
		// Durations holds the wall time of every stage that ran.
		Durations map[string]time.Duration
	}

	// Executor runs stages. It is single-use.
	Executor struct {
		outDir string
		jobs   int
		logger *log.Logger
		stages map[string]Stage
		order  []string

		mu     sync.Mutex
		result Result
	}

	// Option configures an Executor.
	Option func(*Executor)
)

// WithJobs bounds concurrently running stages. n <= 0 means runtime.NumCPU().
func WithJobs(n int) Option {
	return func(e *Executor) { e.jobs = n }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// New creates an Executor publishing outputs under outDir/<stage>.
func New(outDir string, opts ...Option) *Executor {
	e := &Executor{outDir: outDir, stages: map[string]Stage{}}
	for _, opt := range opts {
		opt(e)
	}
	if e.jobs <= 0 {
		e.jobs = runtime.NumCPU()
	}
	if e.logger == nil {
		e.logger = log.Default().WithPrefix("stage")
	}
	return e
}

// Add registers a stage.
func (e *Executor) Add(s Stage) error {
	if s.Name == "" || s.Name == workDirName || filepath.Base(s.Name) != s.Name {
		return fmt.Errorf("invalid stage name %q", s.Name)
	}
	if _, ok := e.stages[s.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStage, s.Name)
	}
	e.stages[s.Name] = s
	e.order = append(e.order, s.Name)
	return nil
}

// Graph builds the producer/consumer graph of the registered stages.
func (e *Executor) Graph() (*dag.Graph, error) {
	g := dag.New()
	for _, name := range e.order {
		g.AddNode(name)
	}
	for _, name := range e.order {
		for _, in := range e.stages[name].Inputs {
			if _, ok := e.stages[in]; !ok {
				return nil, fmt.Errorf("%w: stage %s consumes %s", ErrUnknownInput, name, in)
			}
			g.AddEdge(in, name)
		}
	}
	return g, nil
}

// Run executes every stage and returns once all have finished or the build
// failed. On failure the returned Result still reports per-stage states.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	g, err := e.Graph()
	if err != nil {
		return nil, err
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	workRoot := filepath.Join(e.outDir, workDirName)
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating stage work area: %w", err)
	}
	defer func() { _ = os.RemoveAll(workRoot) }()

	e.result = Result{
		Outputs:   map[string]string{},
		States:    map[string]State{},
		Durations: map[string]time.Duration{},
	}
	done := make(map[string]chan struct{}, len(order))
	for _, name := range order {
		e.result.States[name] = StatePending
		done[name] = make(chan struct{})
	}

	eg, egCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(e.jobs))
	for _, name := range order {
		s := e.stages[name]
		eg.Go(func() error {
			return e.runStage(egCtx, s, g.Producers(name), done, sem, workRoot)
		})
	}
	err = eg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	res := e.result
	res.Outputs = maps.Clone(e.result.Outputs)
	res.States = maps.Clone(e.result.States)
	res.Durations = maps.Clone(e.result.Durations)
	return &res, err
}

// runStage blocks until every producer has published, then runs s under the
// job semaphore.
func (e *Executor) runStage(ctx context.Context, s Stage, producers []string, done map[string]chan struct{}, sem *semaphore.Weighted, workRoot string) error {
	for _, p := range producers {
		select {
		case <-done[p]:
		case <-ctx.Done():
			e.setState(s.Name, StateSkipped)
			return ctx.Err()
		}
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		e.setState(s.Name, StateSkipped)
		return err
	}
	defer sem.Release(1)

	in := make(Inputs, len(producers))
	e.mu.Lock()
	for _, p := range producers {
		in[p] = e.result.Outputs[p]
	}
	e.mu.Unlock()

	e.setState(s.Name, StateRunning)
	logger := e.logger.With("stage", s.Name)
	logger.Debug("starting")
	start := time.Now()

	published, err := e.execute(ctx, s, in, workRoot)

	e.mu.Lock()
	e.result.Durations[s.Name] = time.Since(start)
	e.mu.Unlock()
	if err != nil {
		e.setState(s.Name, StateFailed)
		logger.Error("failed", "error", err)
		return &Error{Stage: s.Name, Err: err}
	}

	e.mu.Lock()
	e.result.Outputs[s.Name] = published
	e.result.States[s.Name] = StateCompleted
	e.mu.Unlock()
	close(done[s.Name])
	logger.Info("completed", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// execute runs s in a fresh workspace and renames the workspace into the
// output area on success.
func (e *Executor) execute(ctx context.Context, s Stage, in Inputs, workRoot string) (string, error) {
	workspace, err := os.MkdirTemp(workRoot, s.Name+"-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.RemoveAll(workspace) }()

	if err := s.Run(ctx, in, workspace); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	published := filepath.Join(e.outDir, s.Name)
	if err := os.RemoveAll(published); err != nil {
		return "", err
	}
	if err := os.Chmod(workspace, 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(workspace, published); err != nil {
		return "", fmt.Errorf("publishing stage output: %w", err)
	}
	return published, nil
}

func (e *Executor) setState(name string, st State) {
	e.mu.Lock()
	e.result.States[name] = st
	e.mu.Unlock()
}

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

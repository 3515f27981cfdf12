package archive_extractor

import (
	"context"
	"errors"
	"sync/atomic"
)

var ErrJobAlreadyStarted = errors.New("extraction job already started")

// State is a step of the job lifecycle. States only move forward; Done and
// Failed are terminal.
type State int32

const (
	StateIdle State = iota
	StateReading
	StateDecompressing
	StateParsing
	StateWriting
	StateDone
	StateFailed
)

var stateNames = [...]string{"idle", "reading", "decompressing", "parsing", "writing", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

type jobState struct {
	state    atomic.Int32
	pending  atomic.Int64
	progress atomic.Pointer[progressTracker]
}

func (js *jobState) advance(to State) {
	if js == nil {
		return
	}
	for {
		cur := State(js.state.Load())
		if cur == StateDone || cur == StateFailed || cur >= to {
			return
		}
		if js.state.CompareAndSwap(int32(cur), int32(to)) {
			return
		}
	}
}

func (js *jobState) addPending(delta int64) {
	if js != nil {
		js.pending.Add(delta)
	}
}

func (js *jobState) trackProgress(pt *progressTracker) {
	if js != nil {
		js.progress.Store(pt)
	}
}

// CompletionFunc is called exactly once with the job outcome.
type CompletionFunc func(err error)

// Job extracts one archive into one destination. It runs at most once.
type Job struct {
	Format      Format
	Source      string
	Destination string

	conf    *extractConfiguration
	state   jobState
	started atomic.Bool
	done    chan struct{}
	err     error
}

func NewJob(format Format, src, dest string, options ...Option) *Job {
	j := &Job{
		Format:      format,
		Source:      src,
		Destination: dest,
		conf:        newExtractConfiguration(options...),
		done:        make(chan struct{}),
	}
	j.conf.state = &j.state
	return j
}

// Run extracts synchronously.
func (j *Job) Run(ctx context.Context) error {
	if !j.started.CompareAndSwap(false, true) {
		return ErrJobAlreadyStarted
	}
	return j.run(ctx)
}

// Start extracts on a new goroutine and reports the outcome to done, which may
// be nil. The returned error is only ErrJobAlreadyStarted.
func (j *Job) Start(ctx context.Context, done CompletionFunc) error {
	if !j.started.CompareAndSwap(false, true) {
		return ErrJobAlreadyStarted
	}
	go func() {
		err := j.run(ctx)
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func (j *Job) run(ctx context.Context) error {
	defer close(j.done)
	log := j.conf.log().With("format", string(j.Format), "source", j.Source, "destination", j.Destination)
	log.Info("extracting archive")

	extractor, err := newExtractor(j.Format, j.Source, j.conf)
	if err == nil {
		err = extractor.ExtractArchive(ctx, j.Source, j.Destination)
	}
	if err != nil {
		j.err = err
		j.state.advance(StateFailed)
		log.Error("extraction failed", "error", err)
		return err
	}
	j.state.advance(StateDone)
	log.Info("archive extracted")
	return nil
}

// Wait blocks until the job has finished and returns its outcome.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) State() State {
	return State(j.state.state.Load())
}

// Pending is the number of files whose write has started but not resolved.
func (j *Job) Pending() int64 {
	return j.state.pending.Load()
}

// Progress returns the latest byte accounting, zero before reading starts or
// for formats that do not report progress.
func (j *Job) Progress() ProgressState {
	if pt := j.state.progress.Load(); pt != nil {
		return pt.State()
	}
	return ProgressState{}
}

package sceneenhancer

import (
	"context"
	"sync/atomic"

	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/scene"
	"github.com/menta2k/scene-enhancer/pkg/synthesis"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Job is an operation running on its own goroutine
type Job[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}
	result T
	err    error

	completed atomic.Int64
	total     atomic.Int64
}

func startJob[T any](ctx context.Context, run func(ctx context.Context, job *Job[T]) (T, error)) *Job[T] {
	ctx, cancel := context.WithCancel(ctx)
	job := &Job[T]{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(job.done)
		defer cancel()
		job.result, job.err = run(ctx, job)
	}()
	return job
}

// Done is closed when the job finishes
func (j *Job[T]) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its outcome
func (j *Job[T]) Wait() (T, error) {
	<-j.done
	return j.result, j.err
}

// Cancel requests cancellation. Wait then returns an error matching
// types.ErrCancelled unless the job had already completed.
func (j *Job[T]) Cancel() {
	j.cancel()
}

// Progress returns the processed and total unit counts reported so far
func (j *Job[T]) Progress() (done, total int) {
	return int(j.completed.Load()), int(j.total.Load())
}

func (j *Job[T]) report(done, total int) {
	j.completed.Store(int64(done))
	j.total.Store(int64(total))
}

// StartAnalyzeScene runs AnalyzeScene asynchronously
func (e *Enhancer) StartAnalyzeScene(ctx context.Context, buf *types.PixelBuffer) *Job[*scene.Analysis] {
	return startJob(ctx, func(ctx context.Context, job *Job[*scene.Analysis]) (*scene.Analysis, error) {
		res, err := e.AnalyzeScene(ctx, buf)
		if err == nil {
			job.report(1, 1)
		}
		return res, err
	})
}

// StartHealArea runs HealArea asynchronously, reporting progress per patch
func (e *Enhancer) StartHealArea(ctx context.Context, buf *types.PixelBuffer, mask *types.Mask, mode performance.Mode) *Job[*synthesis.Result] {
	return startJob(ctx, func(ctx context.Context, job *Job[*synthesis.Result]) (*synthesis.Result, error) {
		return e.HealArea(ctx, buf, mask, mode, job.report)
	})
}

package pipeline

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

/*
	One reader fills a bounded queue with batches, NumTasks workers
	transform them and, unless the task writes on its own, a single
	writer drains the results. Nothing guarantees the output order.
*/

// Reader returns the next batch of at most `size` elements, io.EOF when done
type Reader[I any] func(ctx context.Context, size int) ([]I, error)

type Task[I any, O any] func(ctx context.Context, batch []I) ([]O, error)

type Writer[O any] func(ctx context.Context, batch []O) error

type Config struct {
	BatchSize int
	NumTasks  int
	// queue capacity, in batches
	Capacity int
	// cancel everything on the first failed batch, otherwise failures
	// are aggregated and returned at the end
	AbortOnFail          bool
	ReadQueuePutTimeout  time.Duration
	WriteQueuePutTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:            100,
		NumTasks:             1,
		Capacity:             5,
		AbortOnFail:          true,
		ReadQueuePutTimeout:  20 * time.Minute,
		WriteQueuePutTimeout: 20 * time.Minute,
	}
}

type Stats struct {
	Batches  int64
	Elements int64
	Written  int64
	Failed   int64
}

type Runner[I any, O any] struct {
	cfg    Config
	read   Reader[I]
	task   Task[I, O]
	write  Writer[O]
	logger logrus.FieldLogger

	batches  atomic.Int64
	elements atomic.Int64
	written  atomic.Int64
	failed   atomic.Int64

	mux  sync.Mutex
	errs *multierror.Error
}

// New builds a runner. `write` may be nil when the task does its own
// writes, see Then.
func New[I any, O any](cfg Config, read Reader[I], task Task[I, O], write Writer[O], logger logrus.FieldLogger) *Runner[I, O] {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.NumTasks < 1 {
		cfg.NumTasks = 1
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = cfg.NumTasks
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner[I, O]{cfg: cfg, read: read, task: task, write: write, logger: logger}
}

// Then chains a writer after a task, so that every worker writes its own output
func Then[I any, O any](task Task[I, O], write Writer[O]) Task[I, O] {
	return func(ctx context.Context, batch []I) ([]O, error) {
		out, err := task(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, nil
		}
		if err := write(ctx, out); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

func (r *Runner[I, O]) Stats() Stats {
	return Stats{
		Batches:  r.batches.Load(),
		Elements: r.elements.Load(),
		Written:  r.written.Load(),
		Failed:   r.failed.Load(),
	}
}

// Run blocks until the reader is exhausted and every batch went through,
// or until the first failure when AbortOnFail is set.
func (r *Runner[I, O]) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	in := make(chan []I, r.cfg.Capacity)
	var out chan []O
	if r.write != nil {
		out = make(chan []O, r.cfg.Capacity)
	}

	goSafe(g, r.logger, "reader", func() error {
		defer close(in)
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch, err := r.read(ctx, r.cfg.BatchSize)
			if len(batch) > 0 {
				r.batches.Add(1)
				r.elements.Add(int64(len(batch)))
				if perr := put(ctx, in, batch, r.cfg.ReadQueuePutTimeout); perr != nil {
					return errors.Wrap(perr, "read queue")
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "reading")
			}
		}
	})

	var workers sync.WaitGroup
	for i := 0; i < r.cfg.NumTasks; i++ {
		workers.Add(1)
		worker := i
		goSafe(g, r.logger.WithField("worker", worker), "task", func() error {
			defer workers.Done()
			for {
				var batch []I
				var ok bool
				select {
				case <-ctx.Done():
					return ctx.Err()
				case batch, ok = <-in:
				}
				if !ok {
					return nil
				}
				result, err := r.task(ctx, batch)
				if err != nil {
					if ferr := r.fail(err, "task"); ferr != nil {
						return ferr
					}
					continue
				}
				if out != nil && len(result) > 0 {
					if perr := put(ctx, out, result, r.cfg.WriteQueuePutTimeout); perr != nil {
						return errors.Wrap(perr, "write queue")
					}
				}
			}
		})
	}

	if out != nil {
		goSafe(g, r.logger, "closer", func() error {
			workers.Wait()
			close(out)
			return nil
		})
		goSafe(g, r.logger, "writer", func() error {
			for batch := range out {
				if err := r.write(ctx, batch); err != nil {
					if ferr := r.fail(err, "writer"); ferr != nil {
						return ferr
					}
					continue
				}
				r.written.Add(int64(len(batch)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.errs.ErrorOrNil()
}

// fail returns the error to abort with, nil when the run goes on
func (r *Runner[I, O]) fail(err error, stage string) error {
	r.failed.Add(1)
	err = errors.Wrap(err, stage)
	if r.cfg.AbortOnFail {
		return err
	}
	r.logger.WithError(err).Warn("batch failed, going on")
	r.mux.Lock()
	r.errs = multierror.Append(r.errs, err)
	r.mux.Unlock()
	return nil
}

// goSafe runs f in the group, turning a panic into an error of the group
func goSafe(g *errgroup.Group, logger logrus.FieldLogger, name string, f func() error) {
	g.Go(func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				logger.WithField("stack", string(debug.Stack())).Errorf("recovered from panic in %s: %v", name, p)
				err = fmt.Errorf("panic occurred in %s: %v", name, p)
			}
		}()
		return f()
	})
}

func put[T any](ctx context.Context, ch chan<- T, v T, timeout time.Duration) error {
	if timeout <= 0 {
		select {
		case ch <- v:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.Errorf("queue full for more than %s", timeout)
	}
}

// SliceReader serves the elements of a slice, mostly useful in tests
func SliceReader[I any](items []I) Reader[I] {
	var mux sync.Mutex
	pos := 0
	return func(_ context.Context, size int) ([]I, error) {
		mux.Lock()
		defer mux.Unlock()
		if pos >= len(items) {
			return nil, io.EOF
		}
		end := pos + size
		if end > len(items) {
			end = len(items)
		}
		batch := items[pos:end]
		pos = end
		return batch, nil
	}
}

package workerpool

import (
	"fmt"
	"log"
	"sync"

	"github.com/intuitionamiga/sonora"
)

// MixerProcessor is the subset of mixer.Mixer the worker pool needs:
// render exactly one block into the caller-provided output buffer,
// reporting whether anything audible came out.
type MixerProcessor interface {
	ProcessBlock(output []float32, channels, sampleRate int, t sonora.SourceTime) (audible bool, err error)
}

// Task is one sub-mixer's share of a processing round: which processor
// to run and which buffer to render it into.
type Task struct {
	Index     int
	Weight    float64
	Proc      MixerProcessor
	Output    []float32
	Channels  int
	SampleRat int
}

// Result reports one task's outcome.
type Result struct {
	Index   int
	Audible bool
}

type command int

const (
	cmdProcess command = iota
	cmdShutdown
)

type workerState struct {
	id       int
	workCh   chan command
	doneCh   chan error
	mu       sync.Mutex
	tasks    []Task
	t        sonora.SourceTime
	results  []Result
}

func (w *workerState) setTasks(tasks []Task, t sonora.SourceTime) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tasks = tasks
	w.t = t
}

func (w *workerState) takeResults() []Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	r := w.results
	w.results = nil
	return r
}

func (w *workerState) run() {
	promoteCurrentThreadToRealTime()
	for cmd := range w.workCh {
		switch cmd {
		case cmdProcess:
			w.doneCh <- w.runTasksGuarded()
		case cmdShutdown:
			return
		}
	}
}

func (w *workerState) runTasksGuarded() (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("workerpool: worker %d panicked: %v", w.id, r)
			err = fmt.Errorf("workerpool: worker %d panicked: %v", w.id, r)
		}
	}()

	w.mu.Lock()
	tasks := w.tasks
	t := w.t
	w.mu.Unlock()

	results := make([]Result, 0, len(tasks))
	for _, task := range tasks {
		audible, procErr := task.Proc.ProcessBlock(task.Output, task.Channels, task.SampleRat, t)
		if procErr != nil {
			return fmt.Errorf("workerpool: sub-mixer %d: %w", task.Index, procErr)
		}
		results = append(results, Result{Index: task.Index, Audible: audible})
	}

	w.mu.Lock()
	w.results = results
	w.mu.Unlock()
	return nil
}

// Pool is a fixed set of persistent worker goroutines that process
// sub-mixer tasks in parallel, batched by a greedy bin packer so each
// worker gets roughly equal total weight.
type Pool struct {
	workers []*workerState
	batcher *Batcher
}

// New spawns a Pool of workerCount goroutines. Each rendezvous on an
// unbuffered command channel: the caller's Process call blocks until
// every worker with assigned work has reported back, so a worker never
// races ahead into the next block.
func New(workerCount, maxExpectedMixers int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		workers: make([]*workerState, workerCount),
		batcher: NewBatcher(workerCount, maxExpectedMixers),
	}
	for i := range p.workers {
		w := &workerState{
			id:     i,
			workCh: make(chan command),
			doneCh: make(chan error),
		}
		p.workers[i] = w
		go w.run()
	}
	return p
}

// WorkerCount reports how many persistent workers the pool runs.
func (p *Pool) WorkerCount() int { return len(p.workers) }

// ShouldUseConcurrentProcessing reports whether a processing round with
// subMixerCount sub-mixers is worth parallelizing: fewer than two
// workers or fewer than two sub-mixers means the dispatch overhead
// would outweigh any benefit, so the caller should process serially
// instead.
func (p *Pool) ShouldUseConcurrentProcessing(subMixerCount int) bool {
	return len(p.workers) >= 2 && subMixerCount >= 2
}

// Process dispatches tasks across the pool's workers (bin-packed by
// Task.Weight) and blocks until every worker with assigned work has
// completed, returning their combined results. The caller must already
// have checked ShouldUseConcurrentProcessing; Process does not fall
// back to serial execution itself.
func (p *Pool) Process(tasks []Task, t sonora.SourceTime) ([]Result, error) {
	items := make([]Weighted, len(tasks))
	for i, task := range tasks {
		w := task.Weight
		if w <= 0 {
			w = 1
		}
		items[i] = Weighted{Index: i, Weight: w}
	}
	p.batcher.Update(items)

	dispatched := make([]bool, len(p.workers))
	for wi, bin := range p.batcher.Bins() {
		if len(bin.Indices) == 0 {
			continue
		}
		workerTasks := make([]Task, len(bin.Indices))
		for i, taskIdx := range bin.Indices {
			workerTasks[i] = tasks[taskIdx]
		}
		p.workers[wi].setTasks(workerTasks, t)
		p.workers[wi].workCh <- cmdProcess
		dispatched[wi] = true
	}

	var firstErr error
	results := make([]Result, 0, len(tasks))
	for wi, ok := range dispatched {
		if !ok {
			continue
		}
		if err := <-p.workers[wi].doneCh; err != nil && firstErr == nil {
			firstErr = err
		}
		results = append(results, p.workers[wi].takeResults()...)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// Close shuts down every worker goroutine and waits for them to exit.
func (p *Pool) Close() {
	done := make(chan struct{}, len(p.workers))
	for _, w := range p.workers {
		w := w
		go func() {
			w.workCh <- cmdShutdown
			close(w.workCh)
			done <- struct{}{}
		}()
	}
	for range p.workers {
		<-done
	}
}

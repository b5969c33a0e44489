// Package job runs deferred work such as scheduled assistant replies.
package job

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/portal-hub/internal/logging"
)

var (
	// ErrQueueFull is returned when the pending job limit is reached
	ErrQueueFull = errors.New("reply queue is full")
	// ErrQueueStopped is returned for jobs enqueued after Stop
	ErrQueueStopped = errors.New("reply queue is stopped")
)

// Job is a unit of work that must not start before RunAt
type Job struct {
	ID    string
	Name  string
	RunAt time.Time
	Run   func(ctx context.Context) error
}

// QueueConfig configures a ReplyQueue
type QueueConfig struct {
	Workers    int
	MaxPending int
	Logger     *logging.Logger
	// OnDone is called after every executed job with its error (nil on success)
	OnDone func(job *Job, err error)
	// OnDrop is called for every job discarded because the queue stopped
	OnDrop func(job *Job)
}

// ReplyQueue holds delayed jobs ordered by RunAt and executes them on a
// bounded worker pool. Jobs still pending when Stop is called are dropped.
type ReplyQueue struct {
	mu sync.Mutex

	queue   *DelayQueue
	seq     uint64
	started bool
	stopped bool
	active  int

	maxPending int
	workerSem  chan struct{}
	wakeCh     chan struct{}
	stopCh     chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	onDone func(job *Job, err error)
	onDrop func(job *Job)
	logger *logging.Logger
	now    func() time.Time
}

// NewReplyQueue creates a stopped queue; call Start to begin processing
func NewReplyQueue(cfg QueueConfig) *ReplyQueue {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	maxPending := cfg.MaxPending
	if maxPending <= 0 {
		maxPending = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &ReplyQueue{
		queue:      &DelayQueue{},
		maxPending: maxPending,
		workerSem:  make(chan struct{}, workers),
		wakeCh:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		onDone:     cfg.OnDone,
		onDrop:     cfg.OnDrop,
		logger:     logger,
		now:        time.Now,
	}
}

// Start begins dispatching jobs. Jobs run with a context derived from ctx
// that is cancelled by Stop.
func (q *ReplyQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	if q.started {
		return errors.New("reply queue already started")
	}
	q.started = true

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	q.wg.Add(1)
	go q.dispatch(runCtx)

	return nil
}

// Stop drops pending jobs, cancels running ones and waits for workers to exit
func (q *ReplyQueue) Stop() error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	q.stopped = true
	close(q.stopCh)

	dropped := make([]*Job, 0, q.queue.Len())
	for q.queue.Len() > 0 {
		dropped = append(dropped, heap.Pop(q.queue).(*QueueItem).Job)
	}
	cancel := q.cancel
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()

	for _, job := range dropped {
		q.drop(job)
	}
	if len(dropped) > 0 {
		q.logger.WithField("dropped", len(dropped)).Info("Reply queue stopped with pending jobs")
	}
	return nil
}

// Enqueue schedules job. A missing ID is filled in.
func (q *ReplyQueue) Enqueue(job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrQueueStopped
	}
	if q.queue.Len() >= q.maxPending {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.seq++
	heap.Push(q.queue, &QueueItem{Job: job, seq: q.seq})
	q.mu.Unlock()

	// wake the dispatcher in case this job is due before the one it waits on
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// dispatch is the main scheduling loop
func (q *ReplyQueue) dispatch(ctx context.Context) {
	defer q.wg.Done()

	for {
		job, wait := q.nextDue()
		if job != nil {
			select {
			case q.workerSem <- struct{}{}:
			case <-q.stopCh:
				q.drop(job)
				return
			}

			// Stop may have won the race for the free slot
			q.mu.Lock()
			if q.stopped || ctx.Err() != nil {
				q.mu.Unlock()
				<-q.workerSem
				q.drop(job)
				return
			}
			q.active++
			q.mu.Unlock()

			q.wg.Add(1)
			go q.runJob(ctx, job)
			continue
		}

		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-q.wakeCh:
		case <-timerC:
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// nextDue pops the head job when it is due; otherwise it reports how long to wait.
// A zero wait with no job means the queue is empty.
func (q *ReplyQueue) nextDue() (*Job, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.queue.Len() == 0 {
		return nil, 0
	}

	head := (*q.queue)[0]
	wait := head.Job.RunAt.Sub(q.now())
	if wait > 0 {
		return nil, wait
	}

	heap.Pop(q.queue)
	return head.Job, 0
}

func (q *ReplyQueue) runJob(ctx context.Context, job *Job) {
	defer func() {
		q.mu.Lock()
		q.active--
		q.mu.Unlock()
		<-q.workerSem
		q.wg.Done()
	}()

	err := job.Run(ctx)
	if err != nil {
		q.logger.WithError(err).WithFields(map[string]interface{}{
			"job_id":   job.ID,
			"job_name": job.Name,
		}).Warn("Reply job failed")
	}
	if q.onDone != nil {
		q.onDone(job, err)
	}
}

func (q *ReplyQueue) drop(job *Job) {
	if q.onDrop != nil {
		q.onDrop(job)
	}
}

// GetQueueSize returns the number of jobs waiting to run
func (q *ReplyQueue) GetQueueSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queue.Len()
}

// GetActiveJobs returns the number of jobs currently executing
func (q *ReplyQueue) GetActiveJobs() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// QueueItem represents an item in the delay queue
type QueueItem struct {
	Job *Job
	seq uint64
}

// DelayQueue implements heap.Interface ordered by RunAt, then by enqueue order
type DelayQueue []*QueueItem

func (dq DelayQueue) Len() int { return len(dq) }

func (dq DelayQueue) Less(i, j int) bool {
	if dq[i].Job.RunAt.Equal(dq[j].Job.RunAt) {
		return dq[i].seq < dq[j].seq
	}
	return dq[i].Job.RunAt.Before(dq[j].Job.RunAt)
}

func (dq DelayQueue) Swap(i, j int) { dq[i], dq[j] = dq[j], dq[i] }

func (dq *DelayQueue) Push(x interface{}) {
	*dq = append(*dq, x.(*QueueItem))
}

func (dq *DelayQueue) Pop() interface{} {
	old := *dq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*dq = old[0 : n-1]
	return item
}

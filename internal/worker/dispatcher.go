package worker

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrDispatcherBusy is returned when the job queue is full. Callers drop the
// job and log; refinement is best effort.
var ErrDispatcherBusy = errors.New("dispatcher queue full")

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher fans refinement jobs out to an elastic worker pool. Jobs are
// queued per user and users are served in LRU order, so one chatty user
// cannot starve the rest.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job

	mu        sync.Mutex
	queues    map[int64]*userQueue // pending jobs for each user
	ready     *list.List           // LRU order of users with pending jobs
	positions map[int64]*list.Element
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, runner Runner, idleTimeout time.Duration) *Dispatcher {
	pool := newJobChannelPool(minWorkers, maxWorkers, idleTimeout, runner)

	d := &Dispatcher{
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
		pool:      pool,
		jobQueue:  make(chan Job, queueSize),
	}

	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// DispatchRefine queues one exchange for background refinement. It never
// blocks the caller.
func (d *Dispatcher) DispatchRefine(userID int64, userText, replyText string) error {
	job := Job{
		Type: Refine,
		Refine: RefineTask{
			UserID:    userID,
			UserText:  userText,
			ReplyText: replyText,
		},
	}
	select {
	case d.jobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

func (d *Dispatcher) run() {
	for {
		// drain one job of the user at the front of the LRU queue
		if !d.dispatchOne() {
			job := <-d.jobQueue // nothing pending, block for new work
			d.enqueueJob(job)
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		default:
		}
	}
}

// CancelUser drops all pending jobs for a user, e.g. after account deletion.
func (d *Dispatcher) CancelUser(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.queues, userID)
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	userID := job.Refine.UserID

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[userID]
	if q == nil {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	elem := d.ready.PushBack(userID)
	d.positions[userID] = elem
}

// dispatchOne takes the first ready user and hands their oldest job to a
// worker. Returns false when no user has pending work.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	for elem != nil {
		userID := elem.Value.(int64)
		q := d.queues[userID]
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		if len(q.jobs) == 0 {
			q.enqueued = false
			d.ready.Remove(elem)
			delete(d.positions, userID)
		} else {
			d.ready.MoveToBack(elem)
		}
		d.mu.Unlock()

		workerChan := d.pool.acquire()
		debugLog("[dispatcher] assign %s job for user %d", job.Type, userID)
		workerChan <- job
		return true
	}
	d.mu.Unlock()
	return false
}

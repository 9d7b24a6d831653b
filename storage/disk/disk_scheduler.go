package disk

import "sync"

// Request is one unit of scheduled disk work.
type Request struct {
	PageID int64
	Data   []byte
	Write  bool
	RespCh chan Response
}

// Response is the outcome of a scheduled Request.
type Response struct {
	Data []byte
	Err  error
}

// NewReadRequest builds a read Request for pageID.
func NewReadRequest(pageID int64) Request {
	return Request{PageID: pageID, Write: false, RespCh: make(chan Response, 1)}
}

// NewWriteRequest builds a write Request persisting data for pageID.
func NewWriteRequest(pageID int64, data []byte) Request {
	return Request{PageID: pageID, Data: data, Write: true, RespCh: make(chan Response, 1)}
}

// Scheduler serializes disk access per page id: requests for the same page
// are handled in submission order by a single worker goroutine, while
// requests for distinct pages proceed concurrently. This is what lets the
// buffer pool drop its pool-wide latch across an I/O without the I/O
// itself racing against a concurrent writer of the same page.
type Scheduler struct {
	manager *Manager

	mu      sync.Mutex
	workers map[int64]chan Request
}

// NewScheduler creates a Scheduler backed by manager.
func NewScheduler(manager *Manager) *Scheduler {
	return &Scheduler{manager: manager, workers: make(map[int64]chan Request)}
}

// Schedule enqueues req and returns the channel its Response will arrive on.
// The send happens while s.mu is still held so it cannot race a drain
// goroutine that is deciding, under the same lock, whether its queue is
// empty and it may retire: either the worker still exists when Schedule
// looks it up and the send lands in its queue, or drain has already
// retired it and Schedule spawns a fresh one, but never both at once.
func (s *Scheduler) Schedule(req Request) <-chan Response {
	s.mu.Lock()
	queue, ok := s.workers[req.PageID]
	if !ok {
		queue = make(chan Request, 16)
		s.workers[req.PageID] = queue
		go s.drain(req.PageID, queue)
	}
	queue <- req
	s.mu.Unlock()

	return req.RespCh
}

func (s *Scheduler) drain(pageID int64, queue chan Request) {
	for {
		select {
		case req := <-queue:
			s.handle(req)
		default:
			s.mu.Lock()
			select {
			case req := <-queue:
				s.mu.Unlock()
				s.handle(req)
			default:
				delete(s.workers, pageID)
				s.mu.Unlock()
				return
			}
		}
	}
}

func (s *Scheduler) handle(req Request) {
	if req.Write {
		err := s.manager.WritePage(req.PageID, req.Data)
		req.RespCh <- Response{Err: err}
		return
	}

	buf := make([]byte, PageSize)
	err := s.manager.ReadPage(req.PageID, buf)
	req.RespCh <- Response{Data: buf, Err: err}
}

// ReadSync is a convenience wrapper that schedules a read and blocks for
// its result.
func (s *Scheduler) ReadSync(pageID int64) ([]byte, error) {
	resp := <-s.Schedule(NewReadRequest(pageID))
	return resp.Data, resp.Err
}

// WriteSync is a convenience wrapper that schedules a write and blocks for
// its result.
func (s *Scheduler) WriteSync(pageID int64, data []byte) error {
	resp := <-s.Schedule(NewWriteRequest(pageID, data))
	return resp.Err
}

// Deallocate forwards to the underlying manager.
func (s *Scheduler) Deallocate(pageID int64) {
	s.manager.Deallocate(pageID)
}

package queue

import (
	"log/slog"
	"sync"

	"github.com/samber/do"
)

const bufferSize = 64

var _ do.Shutdownable = (*Service)(nil)

// Service buffers schema refresh jobs for the background engine. A spreadsheet
// is queued at most once until its job is marked done.
type Service struct {
	queue chan Job

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool
}

type Job struct {
	UserID        string
	SpreadsheetID string
}

func (j Job) key() string {
	return j.UserID + "\x00" + j.SpreadsheetID
}

func New(_ *do.Injector) (*Service, error) {
	return NewService(bufferSize), nil
}

func NewService(size int) *Service {
	return &Service{
		queue:   make(chan Job, size),
		pending: make(map[string]struct{}),
	}
}

// Add reports whether the job was accepted. Duplicates of a pending job are
// accepted without being queued again.
func (s *Service) Add(job Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if _, ok := s.pending[job.key()]; ok {
		return true
	}

	select {
	case s.queue <- job:
		s.pending[job.key()] = struct{}{}
		return true
	default:
		slog.Warn("Refresh queue is full", "spreadsheet_id", job.SpreadsheetID)
		return false
	}
}

func (s *Service) Done(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, job.key())
}

func (s *Service) Channel() <-chan Job {
	return s.queue
}

func (s *Service) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.queue)
	}

	return nil
}

package engine

import (
	"context"
	"log/slog"
	"receiptagent/app/config"
	"receiptagent/app/service/queue"
	"receiptagent/app/service/schema"
	"time"

	"github.com/samber/do"
)

type Refresher interface {
	Refresh(ctx context.Context, userID, spreadsheetID string) (string, error)
}

// Service drains the refresh queue in the background.
type Service struct {
	queueSvc  *queue.Service
	refresher Refresher
	timeout   time.Duration
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*queue.Service](di),
		do.MustInvoke[*schema.Service](di),
		cfg.Server.RequestTimeout,
	), nil
}

func NewService(queueSvc *queue.Service, refresher Refresher, timeout time.Duration) *Service {
	return &Service{
		queueSvc:  queueSvc,
		refresher: refresher,
		timeout:   timeout,
	}
}

func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.queueSvc.Channel():
			if !ok {
				return
			}

			s.process(ctx, job)
		}
	}
}

func (s *Service) process(ctx context.Context, job queue.Job) {
	defer s.queueSvc.Done(job)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	if _, err := s.refresher.Refresh(ctx, job.UserID, job.SpreadsheetID); err != nil {
		slog.Error("Schema refresh failed",
			"user_id", job.UserID,
			"spreadsheet_id", job.SpreadsheetID,
			"error", err,
		)
		return
	}

	slog.Info("Processed schema refresh",
		"user_id", job.UserID,
		"spreadsheet_id", job.SpreadsheetID,
		"duration", time.Since(start))
}

package counter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Next(ctx context.Context, id string) (int64, error)
	Current(ctx context.Context, id string) (int64, error)
	List(ctx context.Context) ([]Counter, error)
}

// Service issues document numbers backed by atomic counters.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	peek   singleflight.Group
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Next increments the series counter and returns the new sequence.
func (s *Service) Next(ctx context.Context, series string) (int64, error) {
	if series == "" {
		return 0, errors.New("counter: series required")
	}
	seq, err := s.repo.Next(ctx, series)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("counter advanced", slog.String("series", series), slog.Int64("seq", seq))
	return seq, nil
}

// NextDocumentNumber increments the series counter and renders the
// document number for the current year.
func (s *Service) NextDocumentNumber(ctx context.Context, series string) (string, error) {
	seq, err := s.Next(ctx, series)
	if err != nil {
		return "", err
	}
	return FormatDocumentNumber(Prefix(series), s.now().Year(), seq), nil
}

// PreviewNext returns the document number the next call would issue
// without consuming a sequence. Concurrent previews for the same series
// collapse into one repository read.
func (s *Service) PreviewNext(ctx context.Context, series string) (string, error) {
	if series == "" {
		return "", errors.New("counter: series required")
	}
	v, err, _ := s.peek.Do(series, func() (any, error) {
		return s.repo.Current(ctx, series)
	})
	if err != nil {
		return "", err
	}
	return FormatDocumentNumber(Prefix(series), s.now().Year(), v.(int64)+1), nil
}

// List returns every counter for admin inspection.
func (s *Service) List(ctx context.Context) ([]Counter, error) {
	return s.repo.List(ctx)
}

// Package archive records polled report points in SQLite so a follow
// session survives the reporter that produced it.
package archive

import (
	"context"
	"time"

	"codeberg.org/mutker/anemone/internal/errors"
	"codeberg.org/mutker/anemone/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
	log  logger.Logger
}

type noopRecorder struct{}

func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if log == nil {
		log = logger.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Archive disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		return nil, err
	}

	return &service{
		repo: repo,
		cfg:  cfg,
		log:  log,
	}, nil
}

func (s *service) Record(ctx context.Context, batch *Batch) error {
	errFactory := errors.New()

	if batch == nil || len(batch.Xs) != len(batch.Ys) || batch.Start < 0 {
		return errFactory.New(ErrInvalidBatch)
	}
	if len(batch.Xs) == 0 {
		return nil
	}
	if batch.RecordedAt.IsZero() {
		batch.RecordedAt = time.Now()
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if err := s.repo.Record(batch); err != nil {
		return errFactory.Wrap(ErrRecord, err)
	}
	return nil
}

func (s *service) Points(ctx context.Context, key Key) ([]Point, error) {
	select {
	case <-ctx.Done():
		return nil, errors.New().Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}
	return s.repo.Points(key)
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	return nil
}

func (*service) Enabled() bool {
	return true
}

func (*noopRecorder) Record(context.Context, *Batch) error {
	return nil
}

func (*noopRecorder) Points(context.Context, Key) ([]Point, error) {
	return nil, nil
}

func (*noopRecorder) Close() error {
	return nil
}

func (*noopRecorder) Enabled() bool {
	return false
}

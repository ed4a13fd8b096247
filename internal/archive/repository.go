package archive

import (
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/anemone/internal/errors"
	"codeberg.org/mutker/anemone/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*Batch
	flushed       int
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	// One writer; the buffer already serialises access
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Archive repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*Batch, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(batch *Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, batch)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

// Points flushes pending batches so the result includes everything recorded
func (r *repository) Points(key Key) ([]Point, error) {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.flush(); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(selectPointsSQL, key.Program, key.Analysis, key.Name)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageRead, err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var (
			p          Point
			x, y       sql.NullFloat64
			recordedAt int64
		)
		if err := rows.Scan(&p.Seq, &x, &y, &recordedAt); err != nil {
			return nil, errFactory.Wrap(ErrStorageRead, err)
		}
		p.X, p.Y = nullToNaN(x), nullToNaN(y)
		p.RecordedAt = time.Unix(0, recordedAt).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageRead, err)
	}

	return points, nil
}

func nullToNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func (r *repository) Close() error {
	errFactory := errors.New()

	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	r.mu.Lock()
	err := r.flush()
	r.mu.Unlock()
	if err != nil {
		r.db.Close()
		return errFactory.Wrap(ErrStorageClose, err)
	}

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.db.Close()
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Str("path", r.cfg.DBPath).Int("points", r.flushed).Msg("Archive repository closed")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic archive flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush must be called with mu held. Failed batches stay buffered.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	rollback := func(cause error) error {
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, cause)
	}

	pointStmt, err := tx.Prepare(insertPointSQL)
	if err != nil {
		return rollback(err)
	}
	defer pointStmt.Close()

	ids := make(map[Key]int64)
	written := 0
	for _, batch := range r.buffer {
		id, ok := ids[batch.Key]
		if !ok {
			if _, err := tx.Exec(insertReportSQL, batch.Program, batch.Analysis, batch.Name, batch.Kind); err != nil {
				return rollback(err)
			}
			if err := tx.QueryRow(selectReportIDSQL, batch.Program, batch.Analysis, batch.Name).Scan(&id); err != nil {
				return rollback(err)
			}
			ids[batch.Key] = id
		}

		recordedAt := batch.RecordedAt.UnixNano()
		for i := range batch.Xs {
			if _, err := pointStmt.Exec(id, batch.Start+i, batch.Xs[i], batch.Ys[i], recordedAt); err != nil {
				return rollback(err)
			}
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().
		Int("batches", len(r.buffer)).
		Int("points", written).
		Msg("Flushed points to archive")

	r.flushed += written
	r.buffer = r.buffer[:0]

	return nil
}

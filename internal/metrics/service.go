package metrics

import (
	"log"
	"sync"
	"time"

	"github.com/medina-app/medina/internal/model"
)

// Service provides an async metric event writer.
// Emit performs a non-blocking channel send (drops on overflow).
// A background goroutine flushes batches to the Repo.
type Service struct {
	repo      *Repo
	queue     chan model.MetricEvent
	batchSize int
	interval  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// ServiceConfig configures the metrics service.
type ServiceConfig struct {
	Repo          *Repo
	QueueSize     int
	FlushBatch    int
	FlushInterval time.Duration
}

// NewService creates a new metrics ingest service.
func NewService(cfg ServiceConfig) *Service {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 8192
	}
	batchSize := cfg.FlushBatch
	if batchSize <= 0 {
		batchSize = 512
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Service{
		repo:      cfg.Repo,
		queue:     make(chan model.MetricEvent, queueSize),
		batchSize: batchSize,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background flush goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.flushLoop()
}

// Stop signals the flush loop to stop, drains remaining events, and returns.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Emit enqueues a metric event, stamping the timestamp if unset.
// Non-blocking; drops on overflow so the gateway hot path never stalls.
func (s *Service) Emit(e model.MetricEvent) {
	if e.TimestampNs == 0 {
		e.TimestampNs = time.Now().UnixNano()
	}
	select {
	case s.queue <- e:
	default:
		// Queue full, drop the event so the hot path never stalls.
	}
}

// Repo exposes the underlying repo for query paths.
func (s *Service) Repo() *Repo { return s.repo }

func (s *Service) flushLoop() {
	defer s.wg.Done()

	batch := make([]model.MetricEvent, 0, s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.stopCh:
			// Drain what is already queued, then final flush.
			for {
				select {
				case e := <-s.queue:
					batch = append(batch, e)
				default:
					if len(batch) > 0 {
						s.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (s *Service) flush(batch []model.MetricEvent) {
	if s.repo == nil {
		return
	}
	if err := s.repo.BulkInsert(batch); err != nil {
		log.Printf("[metrics] flush of %d events failed: %v", len(batch), err)
	}
}

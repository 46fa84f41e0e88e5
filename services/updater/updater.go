// The background index updater catches collection indices up after
// writes have settled.

// Writers nominate collections through the services registry about
// once every IndexSpacing appends, so indexing cost is amortized
// across all writers of a collection rather than paid per write.
// Nominations sit on a FIFO queue until their settle delay expires,
// then the worker opens the collection and runs UpdateIndex on it.

// The delay matters: records younger than the index write delay are
// never indexed, so running maintenance immediately after an append
// would walk the collection and index nothing. Waiting out the delay
// makes each pass count.

package updater

import (
	"context"
	"sync"
	"time"

	"github.com/Velocidex/ttlcache/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"www.velocidex.com/golang/fleetstore/collections"
	"www.velocidex.com/golang/fleetstore/logging"
	"www.velocidex.com/golang/fleetstore/services"
	"www.velocidex.com/golang/fleetstore/utils"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

const (
	DefaultIndexDelay   = 240 * time.Second
	DefaultMaxQueueSize = int64(1000)
)

var (
	indexUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_updates_total",
		Help: "Number of background index update jobs that completed.",
	})

	indexUpdateErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_update_errors_total",
		Help: "Number of background index update jobs that failed.",
	})

	indexUpdatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "index_updates_dropped_total",
		Help: "Number of index update jobs dropped due to a full queue.",
	})

	queueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "index_updater_queue_length",
		Help: "Jobs currently waiting on the index updater queue.",
	})
)

type UpdaterJob struct {
	Kind         string
	CollectionId string

	// The job may not run before this time.
	NotBefore time.Time
}

type IndexUpdaterService struct {
	config_obj *config_proto.Config
	logger     *logging.LogContext

	// Injectable for tests.
	Clock utils.Clock

	// Runs one index update. Tests hook this to observe scheduling.
	UpdateFunc func(ctx context.Context,
		config_obj *config_proto.Config,
		kind, collection_id string) error

	delay time.Duration

	jobs chan *UpdaterJob
	quit chan struct{}

	quit_once sync.Once

	// Collections already sitting on the queue. Many writers
	// nominate the same hot collection - one pending job is enough.
	pending *ttlcache.Cache
}

func NewIndexUpdaterService(
	config_obj *config_proto.Config) *IndexUpdaterService {

	delay := indexDelay(config_obj)

	pending := ttlcache.NewCache()
	_ = pending.SetTTL(delay)

	return &IndexUpdaterService{
		config_obj: config_obj,
		logger: logging.GetLogger(
			config_obj, &logging.FrontendComponent),
		Clock:      utils.RealClock{},
		UpdateFunc: updateCollectionIndex,
		delay:      delay,
		jobs:       make(chan *UpdaterJob, maxQueueSize(config_obj)),
		quit:       make(chan struct{}),
		pending:    pending,
	}
}

// AddIndexToUpdate nominates the collection for maintenance after
// the settle delay. Fire and forget: a duplicate nomination or a
// full queue drops the job since indexing is opportunistic - the
// next nomination will pick up the same work.
func (self *IndexUpdaterService) AddIndexToUpdate(
	kind, collection_id string) {

	_, err := self.pending.Get(collection_id)
	if err == nil {
		// Already queued.
		return
	}
	_ = self.pending.Set(collection_id, true)

	job := &UpdaterJob{
		Kind:         kind,
		CollectionId: collection_id,
		NotBefore:    self.Clock.Now().Add(self.delay),
	}

	select {
	case self.jobs <- job:
		queueLength.Inc()

	default:
		indexUpdatesDropped.Inc()
		_ = self.pending.Remove(collection_id)
	}
}

// ExitNow requests orderly shutdown. The worker stops without
// draining the queue; an update already in flight is not
// interrupted. Idempotent.
func (self *IndexUpdaterService) ExitNow() {
	self.quit_once.Do(func() {
		close(self.quit)
	})
}

// Run processes jobs until ExitNow() is called or the context is
// cancelled. Exactly one worker runs per process - index updates are
// idempotent so a lost or duplicated job is harmless.
func (self *IndexUpdaterService) Run(ctx context.Context) {
	defer self.pending.Close()

	for {
		// Check for shutdown first so ExitNow never loses the race
		// against a ready job.
		select {
		case <-self.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-self.quit:
			return

		case <-ctx.Done():
			return

		case job := <-self.jobs:
			queueLength.Dec()

			if !self.waitUntilDue(ctx, job) {
				return
			}

			_ = self.pending.Remove(job.CollectionId)

			err := self.UpdateFunc(ctx, self.config_obj,
				job.Kind, job.CollectionId)
			if err != nil {
				indexUpdateErrors.Inc()
				self.logger.Warn("IndexUpdater: updating %v: %v",
					job.CollectionId, err)
				continue
			}

			indexUpdatesTotal.Inc()
		}
	}
}

// Sleep interruptibly until the job is due. Returns false when
// shutdown was requested in the meantime.
func (self *IndexUpdaterService) waitUntilDue(
	ctx context.Context, job *UpdaterJob) bool {
	for {
		wait := job.NotBefore.Sub(self.Clock.Now())
		if wait <= 0 {
			return true
		}

		select {
		case <-self.quit:
			return false
		case <-ctx.Done():
			return false
		case <-self.Clock.After(wait):
		}
	}
}

func updateCollectionIndex(
	ctx context.Context,
	config_obj *config_proto.Config,
	kind, collection_id string) error {

	collection, err := collections.OpenCollectionForIndexing(
		config_obj, kind, collection_id)
	if err != nil {
		return err
	}

	return collection.UpdateIndex(ctx)
}

// StartIndexUpdaterService runs the process wide updater and
// registers it with the services registry. Configurations that do
// not enable it (tests, one shot tools) leave nominations as no-ops.
func StartIndexUpdaterService(
	ctx context.Context, wg *sync.WaitGroup,
	config_obj *config_proto.Config) error {

	if config_obj.Services == nil || !config_obj.Services.IndexUpdater {
		return nil
	}

	service := NewIndexUpdaterService(config_obj)
	services.RegisterIndexUpdater(service)

	logger := logging.GetLogger(config_obj, &logging.FrontendComponent)
	logger.Info("<green>Starting</> Index Updater service.")

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer services.RegisterIndexUpdater(nil)

		service.Run(ctx)
	}()

	return nil
}

func indexDelay(config_obj *config_proto.Config) time.Duration {
	if config_obj.Collections != nil &&
		config_obj.Collections.IndexDelaySec > 0 {
		return time.Duration(
			config_obj.Collections.IndexDelaySec) * time.Second
	}
	return DefaultIndexDelay
}

func maxQueueSize(config_obj *config_proto.Config) int64 {
	if config_obj.Collections != nil &&
		config_obj.Collections.MaxQueueSize > 0 {
		return config_obj.Collections.MaxQueueSize
	}
	return DefaultMaxQueueSize
}

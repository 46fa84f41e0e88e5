package updater

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"www.velocidex.com/golang/fleetstore/collections"
	"www.velocidex.com/golang/fleetstore/datastore"
	"www.velocidex.com/golang/fleetstore/services"
	"www.velocidex.com/golang/fleetstore/utils"
	"www.velocidex.com/golang/fleetstore/vtesting"

	config_proto "www.velocidex.com/golang/fleetstore/config/proto"
)

type UpdaterTestSuite struct {
	suite.Suite

	config_obj *config_proto.Config
	store      *datastore.MemoryDataStore
}

func (self *UpdaterTestSuite) SetupTest() {
	self.config_obj = vtesting.GetTestConfig(self.T())

	db, err := datastore.GetDB(self.config_obj)
	require.NoError(self.T(), err)
	self.store = db.(*datastore.MemoryDataStore)
}

func (self *UpdaterTestSuite) TestJobWaitsForSettleDelay() {
	clock := utils.NewMockClock(time.Now())

	service := NewIndexUpdaterService(self.config_obj)
	service.Clock = clock

	updated := make(chan string, 10)
	service.UpdateFunc = func(ctx context.Context,
		config_obj *config_proto.Config,
		kind, collection_id string) error {
		updated <- kind + ":" + collection_id
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go service.Run(ctx)
	defer service.ExitNow()

	collection_id := "/clients/C.1/collections/F.settle/results"
	service.AddIndexToUpdate("general", collection_id)

	// The job is parked until the settle delay has passed.
	select {
	case req := <-updated:
		self.T().Fatalf("%v ran before its settle delay", req)
	case <-time.After(100 * time.Millisecond):
	}

	clock.Advance(DefaultIndexDelay + time.Minute)

	select {
	case req := <-updated:
		assert.Equal(self.T(), "general:"+collection_id, req)
	case <-time.After(5 * time.Second):
		self.T().Fatal("job never ran")
	}
}

func (self *UpdaterTestSuite) TestDeduplicatesPendingCollections() {
	service := NewIndexUpdaterService(self.config_obj)
	defer service.pending.Close()

	collection_id := "/clients/C.1/collections/F.dedup/results"
	service.AddIndexToUpdate("general", collection_id)
	service.AddIndexToUpdate("general", collection_id)
	service.AddIndexToUpdate("indexed", collection_id)

	// One pending job per collection no matter how many writers
	// nominate it.
	assert.Equal(self.T(), 1, len(service.jobs))

	service.AddIndexToUpdate("general",
		"/clients/C.1/collections/F.other/results")
	assert.Equal(self.T(), 2, len(service.jobs))
}

func (self *UpdaterTestSuite) TestFullQueueDropsNominations() {
	self.config_obj.Collections.MaxQueueSize = 2

	service := NewIndexUpdaterService(self.config_obj)
	defer service.pending.Close()

	for i := 0; i < 5; i++ {
		service.AddIndexToUpdate("general", fmt.Sprintf(
			"/clients/C.1/collections/F.%d/results", i))
	}

	// Nominations never block, the excess is dropped.
	assert.Equal(self.T(), 2, len(service.jobs))

	// A dropped collection can be nominated again once there is
	// room.
	<-service.jobs
	service.AddIndexToUpdate("general",
		"/clients/C.1/collections/F.4/results")
	assert.Equal(self.T(), 2, len(service.jobs))
}

func (self *UpdaterTestSuite) TestExitNowStopsWithoutDraining() {
	service := NewIndexUpdaterService(self.config_obj)
	service.Clock = utils.NewMockClock(time.Now())

	var calls int64
	service.UpdateFunc = func(ctx context.Context,
		config_obj *config_proto.Config,
		kind, collection_id string) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}

	service.AddIndexToUpdate("general",
		"/clients/C.1/collections/F.one/results")
	service.AddIndexToUpdate("general",
		"/clients/C.1/collections/F.two/results")

	done := make(chan struct{})
	go func() {
		service.Run(context.Background())
		close(done)
	}()

	// Jobs are not due yet (the mock clock stands still) so
	// shutdown must not wait for them.
	service.ExitNow()
	service.ExitNow()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		self.T().Fatal("Run did not stop")
	}
	assert.Equal(self.T(), int64(0), atomic.LoadInt64(&calls))
}

func (self *UpdaterTestSuite) TestFailedUpdateIsLogged() {
	clock := utils.NewMockClock(time.Now())

	service := NewIndexUpdaterService(self.config_obj)
	service.Clock = clock

	tried := make(chan struct{}, 10)
	service.UpdateFunc = func(ctx context.Context,
		config_obj *config_proto.Config,
		kind, collection_id string) error {
		tried <- struct{}{}
		return fmt.Errorf("collection went away")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go service.Run(ctx)
	defer service.ExitNow()

	service.AddIndexToUpdate("general",
		"/clients/C.1/collections/F.broken/results")
	clock.Advance(DefaultIndexDelay + time.Minute)

	select {
	case <-tried:
	case <-time.After(5 * time.Second):
		self.T().Fatal("job never ran")
	}

	// A failed update is logged and dropped, the worker moves on.
	vtesting.WaitUntil(5*time.Second, self.T(), func() bool {
		return vtesting.MemoryLogsContainRegex(
			"IndexUpdater: updating .*F.broken")
	})
}

func (self *UpdaterTestSuite) TestUpdaterIndexesCollection() {
	collection := collections.NewGeneralCollection(self.config_obj,
		"/clients/C.1/collections/F.background/results")

	base := time.Now().Add(-time.Hour).UTC().UnixNano() / 1000
	for i := int64(0); i < 2500; i++ {
		_, err := collection.AddAt(
			fmt.Sprintf("value_%d", i), base+i, 0)
		require.NoError(self.T(), err)
	}

	clock := utils.NewMockClock(time.Now())
	service := NewIndexUpdaterService(self.config_obj)
	service.Clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go service.Run(ctx)
	defer service.ExitNow()

	service.AddIndexToUpdate(
		collection.Kind(), collection.CollectionId())
	clock.Advance(DefaultIndexDelay + time.Minute)

	vtesting.WaitUntil(5*time.Second, self.T(), func() bool {
		entries, err := datastore.ReadIndexEntries(
			self.config_obj, self.store, collection.CollectionId())
		return err == nil && len(entries) == 2
	})

	// The index the updater built serves readers of the original
	// collection.
	value, err := collection.GetByOrdinal(ctx, 2100)
	assert.NoError(self.T(), err)
	assert.Equal(self.T(), "value_2100", value)
}

func (self *UpdaterTestSuite) TestStartAndShutdown() {
	// Disabled configurations leave the registry empty so writer
	// nominations become no-ops.
	self.config_obj.Services.IndexUpdater = false
	sm := services.NewServiceManager(context.Background(), self.config_obj)
	assert.NoError(self.T(), sm.Start(StartIndexUpdaterService))
	assert.Nil(self.T(), services.GetIndexUpdater())
	sm.Close()

	self.config_obj.Services.IndexUpdater = true
	sm = services.NewServiceManager(context.Background(), self.config_obj)
	assert.NoError(self.T(), sm.Start(StartIndexUpdaterService))
	assert.NotNil(self.T(), services.GetIndexUpdater())

	// Closing the manager winds the worker down and deregisters it.
	sm.Close()
	assert.Nil(self.T(), services.GetIndexUpdater())
}

func TestIndexUpdater(t *testing.T) {
	suite.Run(t, &UpdaterTestSuite{})
}

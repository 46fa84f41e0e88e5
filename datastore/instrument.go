package datastore

import (
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DatastoreHistorgram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_latency",
			Help:    "Latency to access datastore.",
			Buckets: prometheus.LinearBuckets(0.01, 0.05, 10),
		},
		[]string{"action", "datastore"},
	)

	// Simulate running on a very slow database.
	inject_time = 0
)

func Instrument(action, datastore string) func() time.Duration {
	timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		DatastoreHistorgram.WithLabelValues(action, datastore).Observe(v)
	}))

	// Instrument a delay in API calls.
	if inject_time > 0 {
		time.Sleep(time.Duration(inject_time) * time.Millisecond)
	}

	return timer.ObserveDuration
}

func init() {
	delay_str, pres := os.LookupEnv("FLEETSTORE_SLOW_DATASTORE")
	if pres {
		delay, err := strconv.Atoi(delay_str)
		if err == nil {
			inject_time = delay
		}
	}
}

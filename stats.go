package main

import "github.com/sirupsen/logrus"

// statsLogInterval is the periodic relay-stats logging cron spec: every
// minute, mirroring the janitor's own cadence style in ratelimit.go.
const statsLogInterval = "@every 1m"

// StartStatsLogger runs a periodic robfig/cron job that logs store
// occupancy, giving an operator a rolling signal in the log stream between
// on-demand GET /api/stats polls. Returns a stop function.
func StartStatsLogger(store *EventStore, capacity int, logger *logrus.Logger, spec string) func() {
	c := newCronScheduler()
	_, _ = c.AddFunc(spec, func() {
		logger.WithFields(logrus.Fields{
			"stored_events": store.Len(),
			"capacity":      capacity,
		}).Info("relay stats")
	})
	c.Start()
	return func() { c.Stop() }
}

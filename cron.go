package main

import "github.com/robfig/cron/v3"

// newCronScheduler builds a cron.Cron with second-less (standard 5-field)
// parsing, used by the rate-limiter janitor and the periodic stats logger.
// Grounded in r3e-network-neo-miniapps-platform's robfig/cron/v3 dependency.
func newCronScheduler() *cron.Cron {
	return cron.New()
}

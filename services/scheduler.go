// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweeper runs the periodic match janitor: resume matches that never
// reached the runner and force-resolve runs lost to a crash.
func (s *MatchService) StartSweeper() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: relaunch pending matches
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			s.ResumePending()
		}),
	)

	// Every 5 minutes: placeholder-resolve matches stuck in_progress
	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			s.FailStale(s.RunTimeout + 5*time.Minute)
		}),
	)

	log.Println("[Scheduler] match sweeper started")
}

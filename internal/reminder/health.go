package reminder

// maxPollFailures is the number of consecutive failed polls after which the scheduler
// reports unhealthy.
const maxPollFailures = 3

// HealthChecker reports the scheduler unhealthy once its poll loop keeps failing to lease.
// It has nothing to probe: Scheduler.Run updates the failure count it reads.
type HealthChecker struct {
	s *Scheduler
}

func NewHealthChecker(s *Scheduler) *HealthChecker { return &HealthChecker{s: s} }

func (hc *HealthChecker) Name() string { return "scheduler" }

func (hc *HealthChecker) IsHealthy() bool {
	return hc.s.pollFailures.Load() < maxPollFailures
}

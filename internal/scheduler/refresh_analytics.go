package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/analytics"
)

// refreshTimeout bounds one cache maintenance run.
const refreshTimeout = 30 * time.Second

// RefreshAnalyticsJob drops analytics cache entries made stale by price
// ingestion. The next request for a stale universe recomputes against the new
// snapshot.
type RefreshAnalyticsJob struct {
	service *analytics.Service
	log     zerolog.Logger
}

// NewRefreshAnalyticsJob creates the analytics cache maintenance job.
func NewRefreshAnalyticsJob(service *analytics.Service, log zerolog.Logger) *RefreshAnalyticsJob {
	return &RefreshAnalyticsJob{
		service: service,
		log:     log.With().Str("job", "refresh_analytics").Logger(),
	}
}

// Name returns the job name
func (j *RefreshAnalyticsJob) Name() string {
	return "refresh_analytics"
}

// Run checks the current snapshot version and evicts older cache entries.
func (j *RefreshAnalyticsJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	return j.service.RefreshCache(ctx)
}

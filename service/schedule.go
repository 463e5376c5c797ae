package service

import (
	"time"
)

// CleanupArtifactsTask is the cron entry point sweeping stale rendered
// images out of the diagram storage directory. Diagram rows are untouched;
// only image artifacts age out.
func CleanupArtifactsTask(renderer *Renderer, retention time.Duration) {
	logger.Infof("[%s] Start scheduled task CleanupArtifactsTask", "scheduled task")
	startTime := time.Now()

	if err := renderer.CleanupArtifacts(retention); err != nil {
		logger.Warnf("[%s] artifact cleanup error, %s", "scheduled task", err)
		return
	}

	duration := time.Since(startTime)
	logger.Infof("[%s] Finished scheduled task CleanupArtifactsTask cost %v", "scheduled task", duration)
}

package worker

// Unique job names; enqueueing under the same name deduplicates
const (
	JobFlush         = "health_sync_worker"
	JobSensorSync    = "samsung_health_sync_work"
	JobPeriodicSync  = "health_data_sync"
	JobImmediateSync = "immediate_health_data_sync"
)

package jobrun

const (
	WorkflowName = "materialize_job"
	ActivityRun  = "materialize_job_run"
)

// Application error types raised by the activity.
const (
	ErrTypeFailed = "job_failed"
	// ErrTypeFatal tags failures that no retry can fix.
	ErrTypeFatal = "job_fatal"
)

package domain

import "time"

type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// RetrainRequest is the unit handed to the retrain queue.
type RetrainRequest struct {
	JobID            string `json:"job_id"`
	DatasetPath      string `json:"dataset_path"`
	IncludeFeedbacks bool   `json:"include_feedbacks"`
	BaseVersion      string `json:"base_version,omitempty"`
}

type RetrainResult struct {
	Metrics BasicMetrics `json:"metrics"`
	Version string       `json:"version"`
}

// RetrainJob is the status record of one asynchronous training run.
type RetrainJob struct {
	JobID            string         `json:"job_id"`
	Status           JobStatus      `json:"status"`
	Progress         int            `json:"progress"`
	Message          string         `json:"message,omitempty"`
	Result           *RetrainResult `json:"result_metrics,omitempty"`
	DatasetPath      string         `json:"-"`
	IncludeFeedbacks bool           `json:"include_feedbacks"`
	BaseVersion      string         `json:"base_version,omitempty"`
	SubmittedAt      time.Time      `json:"submitted_at"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (j RetrainJob) Clone() RetrainJob {
	out := j
	if j.Result != nil {
		res := *j.Result
		out.Result = &res
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// RetrainCommand is what callers submit; DatasetID is resolved to a storage path.
type RetrainCommand struct {
	JobID            string `json:"job_id,omitempty"`
	DatasetID        string `json:"dataset_id"`
	IncludeFeedbacks bool   `json:"include_feedbacks"`
	BaseVersion      string `json:"base_version,omitempty"`
}

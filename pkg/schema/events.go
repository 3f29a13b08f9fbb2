// pkg/schema/events.go
package schema

// BlobCreated is the trigger payload published when a file lands in the
// raw-images container. Data carries the bytes inline; when it is empty the
// dispatcher reads Container/Name from the source store.
type BlobCreated struct {
	ID         string `json:"id"`
	Container  string `json:"container"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Data       []byte `json:"data,omitempty"`
	HappenedAt int64  `json:"happened_at"`
}

type DispatchStage string

const (
	StageSaved     DispatchStage = "saved"
	StageValidated DispatchStage = "validated"
	StageLaunched  DispatchStage = "launched"
	StagePolling   DispatchStage = "polling"
	StageUploading DispatchStage = "uploading"
	StageCompleted DispatchStage = "completed"
	StageFailed    DispatchStage = "failed"
	StageTimedOut  DispatchStage = "timed_out"
)

type FailureType string

const (
	FailureTypeStorage    FailureType = "storage"
	FailureTypeValidation FailureType = "validation"
	FailureTypeLaunch     FailureType = "launch"
	FailureTypeTimeout    FailureType = "timeout"
	FailureTypeJobFailed  FailureType = "job_failed"
	FailureTypeQuery      FailureType = "status_query"
	FailureTypeLocked     FailureType = "locked"
	FailureTypeUpload     FailureType = "upload"
	FailureTypeCanceled   FailureType = "canceled"
)

type ArtifactResult struct {
	Path   string `json:"path"`
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type DispatchLifecycleEvent struct {
	DispatchID  string        `json:"dispatch_id"`
	JobName     string        `json:"job_name"`
	SourceName  string        `json:"source_name"`
	Stage       DispatchStage `json:"stage"`
	JobStatus   string        `json:"job_status,omitempty"`
	Error       string        `json:"error,omitempty"`
	FailureType FailureType   `json:"failure_type,omitempty"`
	HappenedAt  int64         `json:"happened_at"`
}

type DispatchDone struct {
	DispatchID    string                   `json:"dispatch_id"`
	JobName       string                   `json:"job_name"`
	SourceName    string                   `json:"source_name"`
	InputPath     string                   `json:"input_path"`
	FinalStage    DispatchStage            `json:"final_stage"`
	JobStatus     string                   `json:"job_status,omitempty"`
	TotalUploaded int                      `json:"total_uploaded"`
	TotalFailed   int                      `json:"total_failed"`
	DurationMs    int64                    `json:"duration_ms"`
	Artifacts     []ArtifactResult         `json:"artifacts,omitempty"`
	Lifecycle     []DispatchLifecycleEvent `json:"lifecycle,omitempty"`
	Error         string                   `json:"error,omitempty"`
	FailureType   FailureType              `json:"failure_type,omitempty"`
	HappenedAt    int64                    `json:"happened_at"`
}

// internal/process/job.go
package process

import (
	"fmt"
	"hash/fnv"
	"path"
	"strings"
)

// Status is the state string reported by the container service for a job.
type Status string

const (
	StatusUnknown    Status = ""
	StatusPending    Status = "Pending"
	StatusRunning    Status = "Running"
	StatusSucceeded  Status = "Succeeded"
	StatusFailed     Status = "Failed"
	StatusStopped    Status = "Stopped"
	StatusTerminated Status = "Terminated"
)

// Done reports whether the job finished and its outputs can be collected.
func (s Status) Done() bool {
	return s == StatusTerminated || s == StatusSucceeded
}

// Failed reports whether the job reached a terminal state without output.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusStopped
}

func (s Status) Terminal() bool { return s.Done() || s.Failed() }

const (
	jobNamePrefix = "odm-job-"
	maxJobNameLen = 63
)

// JobName derives the container name for an input file. The mapping is
// deterministic: the same file name always yields the same job name.
// Names over the container-group limit are cut and suffixed with a hash of
// the full base name so distinct files keep distinct jobs.
func JobName(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	raw := strings.ToLower(jobNamePrefix + strings.ReplaceAll(base, ".", "-"))

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	name := b.String()
	if len(name) > maxJobNameLen {
		h := fnv.New32a()
		_, _ = h.Write([]byte(base))
		suffix := fmt.Sprintf("-%08x", h.Sum32())
		name = strings.TrimRight(name[:maxJobNameLen-len(suffix)], "-") + suffix
	}
	return strings.TrimRight(name, "-")
}

// Stem is the key namespace for a file's results: its base name up to the
// first dot.
func Stem(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

// Request captures one dispatch. It only lives for a single invocation.
type Request struct {
	DispatchID string
	SourceName string
	JobName    string
	InputPath  string
	MountPath  string
	Status     Status
	Error      string
}

func NewRequest(dispatchID, sourceName, mountPath string) *Request {
	return &Request{
		DispatchID: dispatchID,
		SourceName: path.Base(strings.ReplaceAll(sourceName, "\\", "/")),
		JobName:    JobName(sourceName),
		MountPath:  mountPath,
		Status:     StatusUnknown,
	}
}

func (r *Request) Observe(s Status) { r.Status = s }

func (r *Request) Fail(err error) {
	if err != nil {
		r.Error = err.Error()
	}
}

// Package orchestrator launches and observes the containerized jobs that
// process an input. The dispatcher only sees the Orchestrator interface, so
// the backend can be swapped without touching dispatch logic.
package orchestrator

import (
	"context"

	"github.com/tendant/odm-dispatcher/internal/process"
)

// Orchestrator runs one external job per name.
type Orchestrator interface {
	// Launch creates and starts the job described by spec.
	Launch(ctx context.Context, spec JobSpec) error

	// Status returns the current state of the named job.
	Status(ctx context.Context, name string) (process.Status, error)

	// Terminate stops and removes the named job.
	Terminate(ctx context.Context, name string) error
}

// JobSpec is everything needed to launch a job scoped to one input.
type JobSpec struct {
	Name          string
	Image         string
	CPU           float64
	MemoryGB      float64
	RestartPolicy string
	CommandLine   string
	Registry      RegistryAuth
	Volume        FileVolume
}

// RegistryAuth are the credentials for pulling Image.
type RegistryAuth struct {
	Server   string
	Username string
	Password string
}

// FileVolume describes the Azure File share mounted into the job.
type FileVolume struct {
	AccountName string
	AccountKey  string
	ShareName   string
	MountPath   string
}

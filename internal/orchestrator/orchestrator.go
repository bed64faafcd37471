// Package orchestrator checks and controls the local sidecar services the
// frame talks to (speech recognition, translation, speech synthesis).
package orchestrator

import "context"

// ServiceStatus is the lifecycle state of a sidecar.
type ServiceStatus string

const (
	StatusStopped ServiceStatus = "stopped"
	StatusRunning ServiceStatus = "running"
	StatusHealthy ServiceStatus = "healthy"
	StatusUnknown ServiceStatus = "unknown"
)

type ServiceInfo struct {
	Name     string        `json:"name"`
	Status   ServiceStatus `json:"status"`
	Category string        `json:"category"`
}

// ServiceManager controls sidecar lifecycles.
type ServiceManager interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Status(ctx context.Context, name string) (*ServiceInfo, error)
	StatusAll(ctx context.Context) ([]ServiceInfo, error)
}

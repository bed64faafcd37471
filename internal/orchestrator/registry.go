package orchestrator

import "sort"

// ServiceMeta holds static metadata for a sidecar.
type ServiceMeta struct {
	Category   string // asr, translate, tts
	HealthURL  string // probed for readiness
	ControlURL string // optional control server with /start, /stop, /status
}

// Registry is the set of sidecars the frame may probe or control.
type Registry struct {
	services map[string]ServiceMeta
}

func NewRegistry(services map[string]ServiceMeta) *Registry {
	return &Registry{services: services}
}

// Lookup returns metadata for a service, or false if it is not registered.
func (r *Registry) Lookup(name string) (ServiceMeta, bool) {
	m, ok := r.services[name]
	return m, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for k := range r.services {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HTTPControlManager manages sidecars through small HTTP control servers
// (see cmd/whisper-control) and plain health endpoints.
type HTTPControlManager struct {
	httpClient *http.Client
	registry   *Registry
}

func NewHTTPControlManager(registry *Registry) *HTTPControlManager {
	return &HTTPControlManager{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		registry:   registry,
	}
}

func (h *HTTPControlManager) control(ctx context.Context, name, action string) error {
	meta, ok := h.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("service %q not in registry", name)
	}
	if meta.ControlURL == "" {
		return fmt.Errorf("service %q has no control URL", name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, meta.ControlURL+"/"+action, nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", action, name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: status %d", action, name, resp.StatusCode)
	}
	return nil
}

// Start launches a sidecar through its control server.
func (h *HTTPControlManager) Start(ctx context.Context, name string) error {
	return h.control(ctx, name, "start")
}

// Stop kills a sidecar through its control server.
func (h *HTTPControlManager) Stop(ctx context.Context, name string) error {
	return h.control(ctx, name, "stop")
}

// Status reports healthy when the health probe passes, running when only
// the control server says the process is up, and stopped otherwise.
func (h *HTTPControlManager) Status(ctx context.Context, name string) (*ServiceInfo, error) {
	meta, ok := h.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("service %q not in registry", name)
	}
	info := &ServiceInfo{Name: name, Category: meta.Category, Status: StatusStopped}

	if meta.HealthURL != "" && h.probeHealth(ctx, meta.HealthURL) {
		info.Status = StatusHealthy
		return info, nil
	}
	if meta.ControlURL == "" {
		if meta.HealthURL == "" {
			info.Status = StatusUnknown
		}
		return info, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.ControlURL+"/status", nil)
	if err != nil {
		return info, nil
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return info, nil
	}
	defer resp.Body.Close()

	var result struct {
		Running bool `json:"running"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Running {
		info.Status = StatusRunning
	}
	return info, nil
}

// StatusAll returns the status of every registered sidecar.
func (h *HTTPControlManager) StatusAll(ctx context.Context) ([]ServiceInfo, error) {
	names := h.registry.Names()
	results := make([]ServiceInfo, 0, len(names))
	for _, name := range names {
		info, err := h.Status(ctx, name)
		if err != nil {
			return nil, err
		}
		results = append(results, *info)
	}
	return results, nil
}

// EnsureReady starts any registered sidecar that is not healthy and waits up
// to wait for all of them. Sidecars without a control URL are only probed.
// It returns the names still not healthy when wait elapses.
func (h *HTTPControlManager) EnsureReady(ctx context.Context, wait time.Duration) []string {
	pending := map[string]bool{}
	for _, name := range h.registry.Names() {
		info, _ := h.Status(ctx, name)
		if info == nil || info.Status == StatusHealthy || info.Status == StatusUnknown {
			continue
		}
		pending[name] = true
		if info.Status == StatusStopped {
			if meta, _ := h.registry.Lookup(name); meta.ControlURL != "" {
				if err := h.Start(ctx, name); err != nil {
					slog.Warn("sidecar start failed", "name", name, "error", err)
				} else {
					slog.Info("sidecar starting", "name", name)
				}
			}
		}
	}

	deadline := time.Now().Add(wait)
	for len(pending) > 0 && time.Now().Before(deadline) && ctx.Err() == nil {
		for name := range pending {
			if meta, _ := h.registry.Lookup(name); meta.HealthURL != "" && h.probeHealth(ctx, meta.HealthURL) {
				slog.Info("sidecar healthy", "name", name)
				delete(pending, name)
			}
		}
		if len(pending) > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(250 * time.Millisecond):
			}
		}
	}

	var notReady []string
	for _, name := range h.registry.Names() {
		if pending[name] {
			notReady = append(notReady, name)
		}
	}
	return notReady
}

func (h *HTTPControlManager) probeHealth(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

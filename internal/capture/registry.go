package capture

import "sync"

// ExtensionInfo is the part of a browser management record the agent uses.
type ExtensionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// Registry caches extension names by id.
type Registry struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]string)}
}

// Load replaces the cache with the extensions in list. Apps and themes are
// skipped.
func (r *Registry) Load(list []ExtensionInfo) {
	names := make(map[string]string, len(list))
	for _, ext := range list {
		if ext.Type == "extension" {
			names[ext.ID] = ext.Name
		}
	}
	r.mu.Lock()
	r.names = names
	r.mu.Unlock()
}

// Installed records a newly installed extension.
func (r *Registry) Installed(info ExtensionInfo) {
	r.mu.Lock()
	r.names[info.ID] = info.Name
	r.mu.Unlock()
}

// Uninstalled forgets id.
func (r *Registry) Uninstalled(id string) {
	r.mu.Lock()
	delete(r.names, id)
	r.mu.Unlock()
}

// Name returns the cached name, or id itself when unknown.
func (r *Registry) Name(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[id]; ok && name != "" {
		return name
	}
	return id
}

// Len returns the number of cached extensions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

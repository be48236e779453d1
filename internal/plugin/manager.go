package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

var errNoManifest = errors.New("no plugin.json")

// Events lists the analysis events plugins may subscribe to.
var Events = []string{EventAnalysisCompleted, EventAnalysisFailed}

// Skipped is a plugin directory that was not loaded.
type Skipped struct {
	Dir    string
	Reason string
}

// Manager indexes export plugins by the analysis events they handle.
type Manager struct {
	pluginDir   string
	mu          sync.RWMutex
	plugins     map[string]*Plugin
	subscribers map[string][]*Plugin
	skipped     []Skipped
}

// NewManager creates a Manager for the plugins under pluginDir.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir:   pluginDir,
		plugins:     make(map[string]*Plugin),
		subscribers: make(map[string][]*Plugin),
	}
}

// Discover loads every pluginDir/<name>/plugin.json and rebuilds the event
// index. A missing plugin directory means no plugins. Invalid manifests and
// plugins without a supported event are skipped and reported by Skipped.
func (m *Manager) Discover() error {
	entries, err := os.ReadDir(m.pluginDir)
	if errors.Is(err, os.ErrNotExist) {
		entries, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("read plugin dir: %w", err)
	}

	plugins := make(map[string]*Plugin)
	subscribers := make(map[string][]*Plugin)
	var skipped []Skipped

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.pluginDir, entry.Name())

		p, err := loadPlugin(dir)
		if errors.Is(err, errNoManifest) {
			continue
		}
		if err == nil {
			if _, dup := plugins[p.Manifest.Name]; dup {
				err = fmt.Errorf("duplicate plugin name %q", p.Manifest.Name)
			}
		}
		if err != nil {
			skipped = append(skipped, Skipped{Dir: dir, Reason: err.Error()})
			continue
		}

		plugins[p.Manifest.Name] = p
		for _, event := range p.Manifest.Events {
			subscribers[event] = append(subscribers[event], p)
		}
	}

	for _, subs := range subscribers {
		sort.Slice(subs, func(i, j int) bool {
			return subs[i].Manifest.Name < subs[j].Manifest.Name
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = plugins
	m.subscribers = subscribers
	m.skipped = skipped
	return nil
}

// loadPlugin reads and checks the manifest in dir. Unknown events are
// dropped; a plugin left with none is rejected.
func loadPlugin(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, "plugin.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errNoManifest
	}
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid plugin.json: %w", err)
	}
	if manifest.Name == "" || manifest.Executable == "" {
		return nil, errors.New("plugin.json needs a name and an executable")
	}

	var events []string
	for _, e := range manifest.Events {
		if slices.Contains(Events, e) && !slices.Contains(events, e) {
			events = append(events, e)
		}
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no supported events, want one of %s", strings.Join(Events, ", "))
	}
	manifest.Events = events

	return &Plugin{
		Manifest:   manifest,
		Path:       dir,
		Executable: filepath.Join(dir, manifest.Executable),
	}, nil
}

// Get returns a plugin by name.
// Returns ErrPluginNotFound if the plugin does not exist.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return p, nil
}

// List returns all loaded plugins ordered by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		plugins = append(plugins, p)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})
	return plugins
}

// Subscribers returns the plugins handling event, ordered by name.
func (m *Manager) Subscribers(event string) []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.subscribers[event])
}

// Skipped returns the plugin directories the last Discover rejected.
func (m *Manager) Skipped() []Skipped {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.skipped)
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}

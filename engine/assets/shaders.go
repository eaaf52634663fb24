// Package assets loads compiled SPIR-V shaders from disk and watches
// them for recompilation, so pipelines can be rebuilt without
// restarting the engine.
package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/glaciergfx/glacier/engine/core"
)

// ShaderRegistry caches SPIR-V binaries by file name. Generation bumps
// whenever a watched shader changes on disk; pipeline owners compare it
// against the generation they built with.
type ShaderRegistry struct {
	mu      sync.RWMutex
	dir     string
	shaders map[string][]byte

	generation atomic.Uint64
	watcher    *fsnotify.Watcher
	done       chan struct{}
}

func NewShaderRegistry(dir string) (*ShaderRegistry, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create shader watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch shader directory %s: %w", dir, err)
	}

	r := &ShaderRegistry{
		dir:     dir,
		shaders: make(map[string][]byte),
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go r.watch()
	return r, nil
}

// Load returns the SPIR-V binary of the named shader, reading it from
// disk on first use.
func (r *ShaderRegistry) Load(name string) ([]byte, error) {
	r.mu.RLock()
	data, ok := r.shaders[name]
	r.mu.RUnlock()
	if ok {
		return data, nil
	}

	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to load shader %s: %w", name, err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("shader %s is not valid SPIR-V, %d bytes", name, len(data))
	}

	r.mu.Lock()
	r.shaders[name] = data
	r.mu.Unlock()
	return data, nil
}

// Generation increases every time a watched shader file changes.
func (r *ShaderRegistry) Generation() uint64 {
	return r.generation.Load()
}

func (r *ShaderRegistry) watch() {
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ".spv") {
				continue
			}
			data, err := os.ReadFile(event.Name)
			if err != nil || len(data)%4 != 0 {
				core.LogWarn("ignoring shader change for %s: %v", name, err)
				continue
			}
			r.mu.Lock()
			r.shaders[name] = data
			r.mu.Unlock()
			r.generation.Add(1)
			core.LogInfo("reloaded shader %s", name)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher error: %v", err)
		}
	}
}

func (r *ShaderRegistry) Close() error {
	close(r.done)
	return r.watcher.Close()
}

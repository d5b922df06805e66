package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/thedtvn/reverseproxy/domain/route"
)

// ReloadCounters is the narrow metrics surface the holder reports reload
// outcomes through, kept as an interface so this package doesn't import
// the metrics package.
type ReloadCounters interface {
	ConfigReloadSucceeded()
	ConfigReloadFailed()
}

type noopReloadCounters struct{}

func (noopReloadCounters) ConfigReloadSucceeded() {}
func (noopReloadCounters) ConfigReloadFailed()    {}

// Holder provides thread-safe access to the current route.Config plus a
// hot-reload loop. The primary reload mechanism is a periodic poll that
// compares the file's raw text against what was last loaded; an fsnotify
// watch and SIGHUP are additional triggers layered on top, but a reload
// only actually happens when the text differs.
type Holder struct {
	mu       sync.RWMutex
	cfg      *route.Config
	path     string
	lastText string

	logger   zerolog.Logger
	counters ReloadCounters
	onChange []func(*route.Config)

	pollEvery time.Duration
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
}

// NewHolder loads the initial config from path and returns a ready Holder.
// Call Start to begin the reload loop.
func NewHolder(path string, logger zerolog.Logger, counters ReloadCounters) (*Holder, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data, logger)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if counters == nil {
		counters = noopReloadCounters{}
	}

	return &Holder{
		cfg:       cfg,
		path:      absPath,
		lastText:  string(data),
		logger:    logger,
		counters:  counters,
		pollEvery: 10 * time.Second,
		stopCh:    make(chan struct{}),
	}, nil
}

// Get returns the current config snapshot.
func (h *Holder) Get() *route.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// OnChange registers a callback invoked, in registration order, after a
// successful reload installs a new snapshot.
func (h *Holder) OnChange(fn func(*route.Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// Start launches the poll loop, the fsnotify watch (best-effort), and the
// SIGHUP listener.
func (h *Holder) Start() {
	go h.pollLoop()

	if w, err := fsnotify.NewWatcher(); err == nil {
		dir := filepath.Dir(h.path)
		if err := w.Add(dir); err != nil {
			h.logger.Warn().Err(err).Str("dir", dir).Msg("could not watch config directory, relying on poll loop only")
			w.Close()
		} else {
			h.watcher = w
			go h.watchLoop()
		}
	} else {
		h.logger.Warn().Err(err).Msg("fsnotify unavailable, relying on poll loop only")
	}

	h.watchSignals()
}

// Stop terminates the poll loop, file watcher, and signal listener.
func (h *Holder) Stop() {
	close(h.stopCh)
	if h.watcher != nil {
		h.watcher.Close()
	}
}

func (h *Holder) pollLoop() {
	ticker := time.NewTicker(h.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.checkAndReload()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) watchLoop() {
	name := filepath.Base(h.path)
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.checkAndReload()
			}
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")
		case <-h.stopCh:
			return
		}
	}
}

func (h *Holder) watchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-sigCh:
				h.logger.Info().Msg("received SIGHUP, checking config for changes")
				h.checkAndReload()
			case <-h.stopCh:
				signal.Stop(sigCh)
				return
			}
		}
	}()
}

// Reload forces an immediate text-diff check, bypassing the poll
// interval. Exposed for callers (such as tests) that want to trigger a
// check on demand.
func (h *Holder) Reload() {
	h.checkAndReload()
}

func (h *Holder) checkAndReload() {
	data, err := os.ReadFile(h.path)
	if err != nil {
		h.logger.Error().Err(err).Str("path", h.path).Msg("config poll: read failed, keeping previous config")
		return
	}

	h.mu.RLock()
	unchanged := string(data) == h.lastText
	h.mu.RUnlock()
	if unchanged {
		return
	}

	newCfg, err := Parse(data, h.logger)
	if err != nil {
		h.logger.Error().Err(err).Msg("config reload failed, previous config retained")
		h.counters.ConfigReloadFailed()
		return
	}

	h.mu.Lock()
	old := h.cfg
	h.cfg = newCfg
	h.lastText = string(data)
	callbacks := append([]func(*route.Config){}, h.onChange...)
	h.mu.Unlock()

	h.logDiff(old, newCfg)
	for _, fn := range callbacks {
		fn(newCfg)
	}

	h.counters.ConfigReloadSucceeded()
	h.logger.Info().Msg("configuration reloaded")
}

func (h *Holder) logDiff(old, new *route.Config) {
	if old.Bind != new.Bind {
		h.logger.Warn().
			Str("old", old.Bind).
			Str("new", new.Bind).
			Msg("bind address changed in config but requires a restart to take effect")
	}
	if len(old.Routes) != len(new.Routes) {
		h.logger.Info().
			Int("old", len(old.Routes)).
			Int("new", len(new.Routes)).
			Msg("route count changed")
	}
	if old.ReputationGateGlobal != new.ReputationGateGlobal {
		h.logger.Info().
			Bool("old", old.ReputationGateGlobal).
			Bool("new", new.ReputationGateGlobal).
			Msg("global reputation gate changed")
	}
}

// ReloadableFields documents which config keys take effect on a hot
// reload versus requiring a restart.
func ReloadableFields() []string {
	return []string{"routes", "rate_limit", "plugins", "reputation_gate", "ipcheck"}
}

// NonReloadableFields documents which config keys require a restart.
func NonReloadableFields() []string {
	return []string{"bind"}
}

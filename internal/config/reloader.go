package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadState represents the current state of the config reloader
type ReloadState string

const (
	// ReloadStateIdle indicates the reloader is idle
	ReloadStateIdle ReloadState = "idle"
	// ReloadStateReloading indicates a reload is in progress
	ReloadStateReloading ReloadState = "reloading"
	// ReloadStateStopped indicates the reloader is stopped
	ReloadStateStopped ReloadState = "stopped"
)

// reloadTimeout bounds one reload including its callbacks
const reloadTimeout = 30 * time.Second

// defaultDebounce coalesces the burst of events an editor save produces
const defaultDebounce = 200 * time.Millisecond

// ReloadCallback is called with the new configuration after a successful load
type ReloadCallback func(ctx context.Context, newConfig *Config) error

// Logger is the subset of a structured logger the reloader needs.
// Both *slog.Logger and *logger.Logger satisfy it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Reloader reloads the configuration on SIGHUP and when the config file
// changes on disk.
type Reloader struct {
	mu            sync.RWMutex
	configPath    string
	currentConfig *Config
	state         ReloadState
	signalChan    chan os.Signal
	watcher       *fsnotify.Watcher
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
	callbacks     []ReloadCallback
	log           Logger

	timerMu  sync.Mutex
	timer    *time.Timer
	debounce time.Duration
}

// NewReloader creates a new config reloader. A nil log falls back to slog.Default().
func NewReloader(configPath string, initialConfig *Config, log Logger) *Reloader {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Reloader{
		configPath:    configPath,
		currentConfig: initialConfig,
		state:         ReloadStateIdle,
		signalChan:    make(chan os.Signal, 1),
		ctx:           ctx,
		cancel:        cancel,
		callbacks:     make([]ReloadCallback, 0),
		log:           log,
		debounce:      defaultDebounce,
	}
}

// Start begins listening for SIGHUP and, when a config path is set, for
// writes to the config file.
func (r *Reloader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	if r.configPath != "" {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		// Watch the directory: editors often replace the file by rename.
		if err := w.Add(filepath.Dir(r.configPath)); err != nil {
			w.Close()
			return fmt.Errorf("failed to watch config directory: %w", err)
		}
		r.watcher = w
		go r.watchFile(w)
	}

	signal.Notify(r.signalChan, syscall.SIGHUP)
	go r.handleSignals()

	r.started = true
	r.log.Info("config reloader started", "config_path", r.configPath)
	return nil
}

// Stop stops signal handling and file watching
func (r *Reloader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return
	}

	signal.Stop(r.signalChan)
	r.cancel()
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}

	r.timerMu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timerMu.Unlock()

	r.started = false
	r.state = ReloadStateStopped
	r.log.Info("config reloader stopped")
}

// Reload reloads the configuration from the file and runs the callbacks.
// The current config is replaced only if every callback succeeds.
func (r *Reloader) Reload(ctx context.Context) error {
	r.mu.Lock()
	if r.state == ReloadStateReloading {
		r.mu.Unlock()
		r.log.Info("config reload already in progress, skipping")
		return nil
	}
	r.state = ReloadStateReloading
	r.mu.Unlock()

	r.log.Info("configuration reload initiated", "config_path", r.configPath)

	newConfig, err := Load(r.configPath)
	if err != nil {
		r.setState(ReloadStateIdle)
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := r.executeCallbacks(ctx, newConfig); err != nil {
		r.setState(ReloadStateIdle)
		return fmt.Errorf("reload callbacks failed: %w", err)
	}

	r.mu.Lock()
	r.currentConfig = newConfig
	if r.state == ReloadStateReloading {
		r.state = ReloadStateIdle
	}
	r.mu.Unlock()

	r.log.Info("configuration reloaded")
	return nil
}

// AddCallback adds a callback that will be called when config is reloaded
func (r *Reloader) AddCallback(callback ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// GetConfig returns the current configuration
func (r *Reloader) GetConfig() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentConfig
}

// State returns the current reload state
func (r *Reloader) State() ReloadState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// IsReloading returns true if a reload is in progress
func (r *Reloader) IsReloading() bool {
	return r.State() == ReloadStateReloading
}

func (r *Reloader) handleSignals() {
	for {
		select {
		case sig := <-r.signalChan:
			r.log.Info("reload signal received", "signal", sig.String())
			go r.reloadAsync()
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Reloader) watchFile(w *fsnotify.Watcher) {
	target := filepath.Clean(r.configPath)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				r.scheduleReload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.log.Warn("config watcher error", "error", err)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Reloader) scheduleReload() {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()

	if r.timer == nil {
		r.timer = time.AfterFunc(r.debounce, r.reloadAsync)
		return
	}
	r.timer.Reset(r.debounce)
}

func (r *Reloader) reloadAsync() {
	if r.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, reloadTimeout)
	defer cancel()
	if err := r.Reload(ctx); err != nil {
		r.log.Error("configuration reload failed", "error", err)
	}
}

func (r *Reloader) executeCallbacks(ctx context.Context, newConfig *Config) error {
	r.mu.RLock()
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.RUnlock()

	for i, callback := range callbacks {
		if err := callback(ctx, newConfig); err != nil {
			r.log.Error("reload callback failed", "callback", i, "error", err)
			return err
		}
	}
	return nil
}

func (r *Reloader) setState(state ReloadState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ReloadStateStopped {
		r.state = state
	}
}

// String returns a string representation of the reload state
func (s ReloadState) String() string {
	return string(s)
}

// String returns a string representation of the reloader
func (r *Reloader) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return fmt.Sprintf("Reloader{state: %s, config_path: %s, callbacks: %d}",
		r.state, r.configPath, len(r.callbacks))
}

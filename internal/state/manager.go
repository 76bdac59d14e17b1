package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const (
	stateFileName        = "run-state.json"
	saveDebounceDuration = 100 * time.Millisecond
)

// Manager checkpoints run state with debounced atomic writes. MarkDirty is
// cheap and safe to call per iteration; the actual save happens at most once
// per debounce window.
type Manager struct {
	dataDir  string
	provider RunStateProvider
	log      *slog.Logger

	dirty atomic.Bool
	mu    sync.Mutex

	saveCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates the data directory and starts the save loop.
func NewManager(dataDir string, provider RunStateProvider, log *slog.Logger) (*Manager, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	m := &Manager{
		dataDir:  dataDir,
		provider: provider,
		log:      log,
		saveCh:   make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
	}

	m.wg.Add(1)
	go m.saveLoop()

	return m, nil
}

func (m *Manager) saveLoop() {
	defer m.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-m.saveCh:
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(saveDebounceDuration)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			timer = nil
			if m.dirty.Load() {
				if err := m.save(); err != nil {
					m.log.Error("state save failed", "err", err)
				}
			}

		case <-m.doneCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// MarkDirty schedules a save.
func (m *Manager) MarkDirty() {
	if m.dirty.CompareAndSwap(false, true) {
		select {
		case m.saveCh <- struct{}{}:
		default:
		}
	}
}

// Load reads the checkpoint, if any, into the provider. A missing file is
// not an error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.FilePath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("unmarshal state: %w", err)
	}

	if state.Version != CurrentStateVersion {
		return fmt.Errorf("unsupported state version: %d", state.Version)
	}

	return m.provider.RestoreState(&state)
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.provider.RunState()
	state.Version = CurrentStateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	path := m.FilePath()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_RDONLY, 0)
	if err == nil {
		_ = f.Sync()
		_ = f.Close()
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename state file: %w", err)
	}

	m.dirty.Store(false)
	return nil
}

// Save forces an immediate checkpoint.
func (m *Manager) Save() error {
	return m.save()
}

// Close stops the save loop and flushes a final checkpoint if one is
// pending.
func (m *Manager) Close() error {
	close(m.doneCh)
	m.wg.Wait()

	if m.dirty.Load() {
		return m.save()
	}
	return nil
}

// FilePath returns the checkpoint file location.
func (m *Manager) FilePath() string {
	return filepath.Join(m.dataDir, stateFileName)
}

package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"ssot/internal/matching/blocking"
	"ssot/internal/matching/comparator"
	"ssot/internal/matching/scoring"
	"ssot/internal/resolution/candidates"
	platformstrings "ssot/pkg/platform/strings"
)

// Engine is the matching configuration read from engine.yaml.
type Engine struct {
	Thresholds    scoring.Thresholds `yaml:"thresholds"`
	NameAgreement float64            `yaml:"name_agreement"`
	BlockingKeys  []string           `yaml:"blocking_keys"`
	MaxBlockSize  int                `yaml:"max_block_size"`
	AutoResolve   AutoResolve        `yaml:"auto_resolve"`

	kinds []blocking.Kind
}

// AutoResolve enables engine-side decisions for unambiguous submissions.
type AutoResolve struct {
	Accept bool `yaml:"accept"`
	Merge  bool `yaml:"merge"`
}

// DefaultEngine is used when no engine.yaml is configured.
func DefaultEngine() *Engine {
	e := &Engine{}
	if err := e.applyDefaults(); err != nil {
		panic(err)
	}
	return e
}

// ParseEngine decodes and validates engine.yaml content. Omitted settings take
// their defaults.
func ParseEngine(data []byte) (*Engine, error) {
	var e Engine
	if err := yaml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse engine config: %w", err)
	}
	if err := e.applyDefaults(); err != nil {
		return nil, err
	}
	return &e, nil
}

func (e *Engine) applyDefaults() error {
	if e.Thresholds == (scoring.Thresholds{}) {
		e.Thresholds = scoring.DefaultThresholds
	}
	if err := e.Thresholds.Validate(); err != nil {
		return err
	}
	if e.NameAgreement == 0 {
		e.NameAgreement = comparator.DefaultNameAgreement
	}
	if e.NameAgreement <= 0 || e.NameAgreement > 1 {
		return fmt.Errorf("name_agreement must be in (0, 1], got %v", e.NameAgreement)
	}
	if e.MaxBlockSize == 0 {
		e.MaxBlockSize = candidates.DefaultMaxBlockSize
	}
	if e.MaxBlockSize < 0 {
		return fmt.Errorf("max_block_size must be positive, got %d", e.MaxBlockSize)
	}
	if len(e.BlockingKeys) == 0 {
		e.kinds = append([]blocking.Kind(nil), blocking.DefaultKinds...)
		for _, k := range e.kinds {
			e.BlockingKeys = append(e.BlockingKeys, string(k))
		}
		return nil
	}
	e.BlockingKeys = platformstrings.DedupeAndTrimLower(e.BlockingKeys)
	kinds, err := blocking.ParseKinds(e.BlockingKeys)
	if err != nil {
		return err
	}
	e.kinds = kinds
	return nil
}

// Kinds returns the validated blocking keys.
func (e *Engine) Kinds() []blocking.Kind {
	return append([]blocking.Kind(nil), e.kinds...)
}

// EngineLoader holds the current engine configuration and hot-reloads it
// from disk. Readers always see a complete, validated value.
type EngineLoader struct {
	path    string
	current atomic.Pointer[Engine]
	logger  *slog.Logger

	mu       sync.Mutex
	onChange []func(*Engine)
}

// NewEngineLoader loads path. An empty path serves DefaultEngine forever.
func NewEngineLoader(path string, logger *slog.Logger) (*EngineLoader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &EngineLoader{path: path, logger: logger}
	if path == "" {
		l.current.Store(DefaultEngine())
		return l, nil
	}
	e, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current.Store(e)
	return l, nil
}

// Current returns the configuration in force.
func (l *EngineLoader) Current() *Engine {
	return l.current.Load()
}

// Thresholds returns the decision thresholds in force.
func (l *EngineLoader) Thresholds() scoring.Thresholds {
	return l.Current().Thresholds
}

// OnChange registers fn to run after each successful reload.
func (l *EngineLoader) OnChange(fn func(*Engine)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Reload re-reads the file. On error the previous configuration stays.
func (l *EngineLoader) Reload() (*Engine, error) {
	if l.path == "" {
		return l.Current(), nil
	}
	e, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current.Store(e)

	l.mu.Lock()
	callbacks := slices.Clone(l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(e)
	}
	return e, nil
}

// Watch reloads on file changes until ctx is done. The directory is watched
// so editors that replace the file atomically are picked up.
func (l *EngineLoader) Watch(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("engine config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("engine config watcher add %s: %w", l.path, err)
	}

	go func() {
		defer w.Close()
		target := filepath.Clean(l.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				e, err := l.Reload()
				if err != nil {
					l.logger.Warn("engine config reload rejected; keeping previous", "path", l.path, "error", err)
					continue
				}
				l.logger.Info("engine config reloaded",
					"path", l.path,
					"upper", e.Thresholds.Upper,
					"lower", e.Thresholds.Lower,
					"blocking_keys", e.BlockingKeys,
				)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("engine config watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (l *EngineLoader) load() (*Engine, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read engine config %s: %w", l.path, err)
	}
	e, err := ParseEngine(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	return e, nil
}

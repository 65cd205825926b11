package converge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/alexisbeaulieu97/profilestate/internal/logger"
)

const defaultDebounce = 500 * time.Millisecond

// Trigger names what caused a watch-mode run.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerFile     Trigger = "file"
	TriggerSchedule Trigger = "schedule"
)

// RunFunc performs one convergence pass. Errors are logged and do not stop
// the watcher.
type RunFunc func(ctx context.Context, trigger Trigger) error

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// Path is the manifest to watch.
	Path string
	// Schedule is a cron expression such as "@every 30m". Empty disables
	// scheduled drift correction.
	Schedule string
	Debounce time.Duration
	Logger   *logger.Logger
}

// Watcher re-runs convergence when the manifest changes and on a schedule.
type Watcher struct {
	opts WatchOptions
	run  RunFunc
}

// NewWatcher validates the schedule and returns a Watcher.
func NewWatcher(opts WatchOptions, run RunFunc) (*Watcher, error) {
	if opts.Path == "" {
		return nil, errors.New("watch: manifest path is required")
	}
	if run == nil {
		return nil, errors.New("watch: run function is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Schedule != "" {
		if _, err := cron.ParseStandard(opts.Schedule); err != nil {
			return nil, fmt.Errorf("watch: invalid schedule %q: %w", opts.Schedule, err)
		}
	}
	return &Watcher{opts: opts, run: run}, nil
}

// Run converges once, then blocks until ctx is cancelled. Runs never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	log := w.opts.Logger.WithFields(map[string]any{"path": w.opts.Path})

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fsw.Close()

	// Editors replace files by rename, so watch the directory and filter.
	target := filepath.Clean(w.opts.Path)
	if err := fsw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch: add %s: %w", filepath.Dir(target), err)
	}

	triggers := make(chan Trigger, 1)
	fire := func(t Trigger) {
		select {
		case triggers <- t:
		default:
		}
	}

	if w.opts.Schedule != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(w.opts.Schedule, func() { fire(TriggerSchedule) }); err != nil {
			return fmt.Errorf("watch: schedule: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.WithFields(map[string]any{"schedule": w.opts.Schedule}).Info("drift correction scheduled")
	}

	w.invoke(ctx, TriggerStartup, log)

	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("watch stopped")
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(w.opts.Debounce)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(w.opts.Debounce)
			}
			debounceC = debounce.C
		case <-debounceC:
			debounceC = nil
			fire(TriggerFile)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Error(err, "file watcher error")
		case trigger := <-triggers:
			w.invoke(ctx, trigger, log)
		}
	}
}

func (w *Watcher) invoke(ctx context.Context, trigger Trigger, log *logger.Logger) {
	if ctx.Err() != nil {
		return
	}
	log = log.WithFields(map[string]any{"trigger": string(trigger)})
	log.Info("running convergence")
	if err := w.run(ctx, trigger); err != nil {
		log.Error(err, "convergence run failed")
	}
}

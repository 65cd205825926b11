package converge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/profilestate/internal/config"
	"github.com/alexisbeaulieu97/profilestate/internal/logger"
	"github.com/alexisbeaulieu97/profilestate/internal/metrics"
	"github.com/alexisbeaulieu97/profilestate/internal/ports"
	"github.com/alexisbeaulieu97/profilestate/internal/state"
)

const (
	resourceKind = "profile"
	tempSuffix   = ".mobileconfig"
)

// CapabilitiesFactory builds the capability set for one run from the
// manifest settings.
type CapabilitiesFactory func(settings config.Settings) (state.Capabilities, error)

// Dependencies are the collaborators injected into a Service. Only
// Capabilities is required.
type Dependencies struct {
	Capabilities CapabilitiesFactory
	Events       ports.EventPublisher
	Metrics      *metrics.Recorder
	Logger       *logger.Logger
	Now          func() time.Time
}

// Service converges every profile of a manifest.
type Service struct {
	deps Dependencies
}

// NewService constructs a convergence service.
func NewService(deps Dependencies) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// ApplyRequest configures one convergence run. DryRun and Force are OR-ed
// with the manifest settings.
type ApplyRequest struct {
	Config    *config.Config
	DryRun    bool
	Force     bool
	OnOutcome func(Outcome)
}

// Converge reconciles every profile in req.Config, at most
// settings.parallel at a time. Unless continue_on_error is set, the first
// capability error cancels the remaining work and is returned together with
// the partial summary.
func (s *Service) Converge(ctx context.Context, req ApplyRequest) (*Summary, error) {
	cfg := req.Config
	if cfg == nil {
		return nil, errors.New("converge: nil config")
	}
	if s.deps.Capabilities == nil {
		return nil, errors.New("converge: no capabilities factory")
	}

	settings := cfg.Settings
	dryRun := req.DryRun || settings.DryRun
	log := s.deps.Logger.WithFields(map[string]any{"config": cfg.Name, "dry_run": dryRun})

	caps, err := s.deps.Capabilities(settings)
	if err != nil {
		publishEvent(ctx, s.deps.Events, log, ports.EventConvergeFailed, map[string]interface{}{
			"config": cfg.Name,
			"phase":  "capabilities",
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("build capabilities: %w", err)
	}

	reconciler := state.New(caps, state.Options{
		Kind:          resourceKind,
		TempSuffix:    tempSuffix,
		TempNamespace: settings.TempNamespace,
		KeepTemp:      settings.KeepTemp,
		Logger:        s.deps.Logger,
	})

	summary := &Summary{Name: cfg.Name, DryRun: dryRun, Started: s.deps.Now()}
	publishEvent(ctx, s.deps.Events, log, ports.EventConvergeStarted, map[string]interface{}{
		"config":   cfg.Name,
		"profiles": len(cfg.Profiles),
		"dry_run":  dryRun,
		"parallel": settings.Parallel,
	})
	log.Info("converging profiles")

	outcomes := make([]Outcome, len(cfg.Profiles))
	ran := make([]bool, len(cfg.Profiles))
	var callbackMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	limit := settings.Parallel
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, profile := range cfg.Profiles {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			outcome := s.reconcileOne(gctx, reconciler, profile, dryRun, req.Force || settings.Force)
			outcomes[i] = outcome
			ran[i] = true

			s.record(gctx, cfg.Name, outcome, log)
			if req.OnOutcome != nil {
				callbackMu.Lock()
				req.OnOutcome(outcome)
				callbackMu.Unlock()
			}

			if outcome.Err != nil && !settings.ContinueOnError {
				return outcome.Err
			}
			return nil
		})
	}
	runErr := g.Wait()

	for i := range outcomes {
		if ran[i] {
			summary.Outcomes = append(summary.Outcomes, outcomes[i])
		}
	}
	summary.Finished = s.deps.Now()

	s.deps.Metrics.MarkRun(summary.Finished)
	if settings.MetricsTextfile != "" {
		if err := s.deps.Metrics.WriteTextfile(settings.MetricsTextfile); err != nil {
			log.WithFields(map[string]any{"path": settings.MetricsTextfile}).Error(err, "failed to write metrics textfile")
		}
	}

	if runErr == nil {
		runErr = ctx.Err()
	}
	counts := summary.Counts()
	if runErr != nil {
		log.Error(runErr, "convergence aborted")
		publishEvent(ctx, s.deps.Events, log, ports.EventConvergeFailed, map[string]interface{}{
			"config": cfg.Name,
			"phase":  "reconcile",
			"error":  runErr.Error(),
		})
		return summary, runErr
	}

	publishEvent(ctx, s.deps.Events, log, ports.EventConvergeCompleted, map[string]interface{}{
		"config":       cfg.Name,
		"dry_run":      dryRun,
		"unchanged":    counts.Unchanged,
		"changed":      counts.Changed,
		"would_change": counts.WouldChange,
		"failed":       counts.Failed,
		"errored":      counts.Errored,
		"duration":     summary.Duration().String(),
	})
	log.WithFields(map[string]any{"changed": counts.Changed, "failed": counts.Failed, "errored": counts.Errored}).Info("convergence complete")
	return summary, nil
}

func (s *Service) reconcileOne(ctx context.Context, reconciler *state.Reconciler, profile config.Profile, dryRun, force bool) Outcome {
	started := s.deps.Now()
	outcome := Outcome{ID: profile.ID, State: profile.State}

	var report *state.Report
	var err error
	switch profile.State {
	case config.StateAbsent:
		report, err = reconciler.EnsureAbsent(ctx, profile.ID, dryRun)
	default:
		report, err = reconciler.EnsureInstalled(ctx, profile.ID, force || profile.Force, profile.Desired(), dryRun)
	}

	outcome.Report = report
	outcome.Err = err
	outcome.Duration = s.deps.Now().Sub(started)
	return outcome
}

func (s *Service) record(ctx context.Context, configName string, o Outcome, log *logger.Logger) {
	payload := map[string]interface{}{
		"config":   configName,
		"id":       o.ID,
		"state":    o.State,
		"status":   string(o.Status()),
		"duration": o.Duration.String(),
	}
	if o.Err != nil {
		s.deps.Metrics.RecordError(o.State, o.Duration)
		payload["error"] = o.Err.Error()
		log.WithFields(map[string]any{"id": o.ID}).Error(o.Err, "profile reconciliation errored")
	} else {
		s.deps.Metrics.RecordReconcile(o.State, o.Report.Result.String(), o.Duration)
		payload["comment"] = o.Report.Comment
	}
	publishEvent(ctx, s.deps.Events, log, outcomeEventType(o), payload)
}

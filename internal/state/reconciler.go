package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexisbeaulieu97/profilestate/internal/logger"
	apperrors "github.com/alexisbeaulieu97/profilestate/pkg/errors"
)

const (
	defaultKind       = "resource"
	defaultTempSuffix = ".tmp"
	defaultNamespace  = "profilestate"

	// PendingInstall is the change note recorded by a dry-run install.
	PendingInstall = "pending install"
	// ChangeInstalled and ChangeRemoved describe a successful removal.
	ChangeInstalled = "installed"
	ChangeRemoved   = "removed"
)

// ErrEmptyContent is returned when Generate produces no content.
var ErrEmptyContent = errors.New("generated content is empty")

// Options tunes a Reconciler. Zero values fall back to defaults.
type Options struct {
	// Kind names the resource in report comments, e.g. "profile".
	Kind string
	// TempSuffix and TempNamespace are passed to CreateScopedTemp.
	TempSuffix    string
	TempNamespace string
	// KeepTemp leaves the generated content on disk after the call returns.
	KeepTemp bool
	Logger   *logger.Logger
}

// Reconciler converges one identifier-keyed resource per call. It holds no
// per-call state, so one Reconciler may serve concurrent calls for distinct
// identifiers.
type Reconciler struct {
	caps Capabilities
	opts Options
	log  *logger.Logger
}

// New builds a Reconciler bound to caps.
func New(caps Capabilities, opts Options) *Reconciler {
	if opts.Kind == "" {
		opts.Kind = defaultKind
	}
	if opts.TempSuffix == "" {
		opts.TempSuffix = defaultTempSuffix
	}
	if opts.TempNamespace == "" {
		opts.TempNamespace = defaultNamespace
	}
	return &Reconciler{caps: caps, opts: opts, log: opts.Logger}
}

// EnsureInstalled makes sure the resource identified by id is installed with
// the content generated from desired. force is accepted for compatibility and
// does not bypass the already-installed short-circuit.
func (r *Reconciler) EnsureInstalled(ctx context.Context, id string, force bool, desired DesiredState, dryRun bool) (*Report, error) {
	if r == nil || r.caps == nil {
		return nil, apperrors.NewCapabilityError("capabilities", id, apperrors.ErrMissingCapability)
	}
	log := r.log.WithFields(map[string]any{"id": id, "kind": r.opts.Kind, "state": "installed", "force": force, "dry_run": dryRun})
	report := newReport(id)

	exists, err := r.caps.Exists(ctx, id)
	if err != nil {
		return nil, apperrors.NewCapabilityError("exists", id, err)
	}

	content, err := r.caps.Generate(ctx, id, desired.Clone())
	if err != nil {
		return nil, apperrors.NewCapabilityError("generate", id, err)
	}
	if len(content) == 0 {
		return nil, apperrors.NewCapabilityError("generate", id, ErrEmptyContent)
	}

	validation, err := r.caps.Validate(ctx, id, content)
	if err != nil {
		return nil, apperrors.NewCapabilityError("validate", id, err)
	}

	if exists && validation.Installed {
		report.Comment = fmt.Sprintf("%s %q already installed", r.opts.Kind, id)
		log.Debug(report.Comment)
		return report, nil
	}

	tmp, err := r.caps.CreateScopedTemp(r.opts.TempSuffix, r.opts.TempNamespace)
	if err != nil {
		return nil, apperrors.NewCapabilityError("createScopedTemp", id, err)
	}
	defer r.finishTemp(tmp, log)

	if _, err := tmp.Write(content); err != nil {
		return nil, apperrors.NewCapabilityError("createScopedTemp", id, fmt.Errorf("write %s: %w", tmp.Path(), err))
	}
	if err := tmp.Close(); err != nil {
		return nil, apperrors.NewCapabilityError("createScopedTemp", id, fmt.Errorf("close %s: %w", tmp.Path(), err))
	}
	log.WithFields(map[string]any{"path": tmp.Path()}).Debug("wrote generated content to scoped temp file")

	if dryRun {
		report.Result = ResultWouldChange
		report.Comment = fmt.Sprintf("%s %q would be installed, generated content follows:\n%s", r.opts.Kind, id, content)
		report.Changes[id] = Change{Note: PendingInstall}
		log.Info("dry run: install pending")
		return report, nil
	}

	if !r.caps.Install(ctx, tmp.Path()) {
		report.Result = ResultFailure
		report.Comment = fmt.Sprintf("failed to install %s with identifier %q", r.opts.Kind, id)
		log.Warn(report.Comment)
		return report, nil
	}

	var oldPayload any
	if validation.OldPayload != nil {
		oldPayload = string(validation.OldPayload)
	}
	report.Changes[id] = Change{Old: oldPayload, New: string(validation.NewPayload)}
	report.Comment = fmt.Sprintf("%s %q installed successfully", r.opts.Kind, id)
	log.Info(report.Comment)
	return report, nil
}

// EnsureAbsent makes sure no resource with id is installed.
func (r *Reconciler) EnsureAbsent(ctx context.Context, id string, dryRun bool) (*Report, error) {
	if r == nil || r.caps == nil {
		return nil, apperrors.NewCapabilityError("capabilities", id, apperrors.ErrMissingCapability)
	}
	log := r.log.WithFields(map[string]any{"id": id, "kind": r.opts.Kind, "state": "absent", "dry_run": dryRun})
	report := newReport(id)

	exists, err := r.caps.Exists(ctx, id)
	if err != nil {
		return nil, apperrors.NewCapabilityError("exists", id, err)
	}

	if !exists {
		report.Comment = fmt.Sprintf("%s %q already absent", r.opts.Kind, id)
		log.Debug(report.Comment)
		return report, nil
	}

	if dryRun {
		// The change map stays empty here, unlike the install dry run.
		report.Result = ResultWouldChange
		report.Comment = fmt.Sprintf("%s %q would be removed", r.opts.Kind, id)
		log.Info("dry run: removal pending")
		return report, nil
	}

	if !r.caps.Remove(ctx, id) {
		report.Result = ResultFailure
		report.Comment = fmt.Sprintf("failed to remove %s with identifier %q", r.opts.Kind, id)
		log.Warn(report.Comment)
		return report, nil
	}

	report.Changes[id] = Change{Old: ChangeInstalled, New: ChangeRemoved}
	report.Comment = fmt.Sprintf("%s %q successfully removed", r.opts.Kind, id)
	log.Info(report.Comment)
	return report, nil
}

func (r *Reconciler) finishTemp(tmp ScopedTemp, log *logger.Logger) {
	if r.opts.KeepTemp {
		_ = tmp.Close()
		log.WithFields(map[string]any{"path": tmp.Path()}).Debug("keeping scoped temp file")
		return
	}
	if err := tmp.Release(); err != nil {
		log.Error(err, "failed to release scoped temp file")
	}
}

// Package profile implements the reconciler capabilities for macOS
// configuration profiles on top of the profiles(1) command.
package profile

import (
	"context"
	"fmt"

	"github.com/alexisbeaulieu97/profilestate/internal/internalexec"
	"github.com/alexisbeaulieu97/profilestate/internal/logger"
	"github.com/alexisbeaulieu97/profilestate/internal/state"
)

const (
	// DefaultBinary is the stock location of profiles(1).
	DefaultBinary = "/usr/bin/profiles"
	// FileSuffix is the extension profiles(1) expects for installable files.
	FileSuffix = ".mobileconfig"
	// DefaultScope is used when the desired state names none.
	DefaultScope = "System"
)

// Options configures Capabilities.
type Options struct {
	Binary  string
	TempDir string
	Runner  internalexec.Runner
	Logger  *logger.Logger
}

// Capabilities talks to the local profiles database.
type Capabilities struct {
	binary  string
	tempDir string
	runner  internalexec.Runner
	log     *logger.Logger
}

var _ state.Capabilities = (*Capabilities)(nil)

// New returns Capabilities with defaults applied.
func New(opts Options) *Capabilities {
	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	runner := opts.Runner
	if runner == nil {
		runner = internalexec.ExecRunner{}
	}
	return &Capabilities{
		binary:  binary,
		tempDir: opts.TempDir,
		runner:  runner,
		log:     opts.Logger.WithFields(map[string]any{"component": "profile"}),
	}
}

// Exists reports whether a profile with the identifier is installed at any level.
func (c *Capabilities) Exists(ctx context.Context, id string) (bool, error) {
	installed, err := c.listInstalled(ctx)
	if err != nil {
		return false, err
	}
	_, ok := installed.find(id)
	return ok, nil
}

// Install runs profiles -I against the file at path.
func (c *Capabilities) Install(ctx context.Context, path string) bool {
	return c.mutate(ctx, "install", "-I", "-F", path)
}

// Remove runs profiles -R for the identifier.
func (c *Capabilities) Remove(ctx context.Context, id string) bool {
	return c.mutate(ctx, "remove", "-R", "-p", id)
}

func (c *Capabilities) mutate(ctx context.Context, action string, args ...string) bool {
	log := c.log.WithFields(map[string]any{"action": action, "args": args})
	res, err := c.runner.Run(ctx, c.binary, args...)
	if err != nil {
		if !internalexec.IsExitError(err) {
			log.Error(err, "profiles command could not be started")
			return false
		}
		if out := internalexec.PrimaryOutput(res); out != "" {
			err = fmt.Errorf("%w: %s", err, out)
		}
		log.WithFields(map[string]any{"exit_code": res.ExitCode}).Error(err, "profiles command failed")
		return false
	}
	log.Debug("profiles command succeeded")
	return true
}

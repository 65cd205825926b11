package main

import (
	"errors"
	"fmt"

	"github.com/alexisbeaulieu97/profilestate/internal/app/converge"
	apperrors "github.com/alexisbeaulieu97/profilestate/pkg/errors"
)

// exitError carries a process exit status out of a command. err may be nil
// when the output already explains the status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// classifyError maps manifest problems to the config exit status and
// everything else to the runtime one.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var parseErr *apperrors.ParseError
	var validationErr *apperrors.ValidationError
	if errors.As(err, &parseErr) || errors.As(err, &validationErr) {
		return withExitCode(converge.ExitConfigError, fmt.Errorf("configuration error: %w", err))
	}
	return withExitCode(converge.ExitRuntimeError, err)
}

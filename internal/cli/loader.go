package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/stagesync/internal/compiler"
	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/subscription"
)

// Error codes for loading failures. Configuration semantics use the
// compiler's E2xx codes.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeConfigFailed = "E004" // CUE config does not compile
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBatchFailed  = "E008" // Batch file does not decode
	ErrCodeStoreFailed  = "E009" // Target store cannot be opened
	ErrCodeBuildFailed  = "E010" // Configuration cannot be registered
)

// LoadError represents an error that occurred while loading an input file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
	Err     error
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func checkFile(path, what string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s not found: %s", what, path), Err: err}
	}
	if err != nil {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", what, err), Err: err}
	}
	if info.IsDir() {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s is a directory: %s", what, path)}
	}
	return nil
}

// LoadConfig reads, compiles and validates a configuration file. Shape
// errors are returned as a *LoadError; semantic problems are returned as
// validation errors alongside the compiled config.
func LoadConfig(path string) (*compiler.Config, []compiler.ValidationError, error) {
	if err := checkFile(path, "config"); err != nil {
		return nil, nil, err
	}
	cfg, err := compiler.LoadConfig(path)
	if err != nil {
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) {
			return nil, nil, &LoadError{
				Code:    ErrCodeConfigFailed,
				Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
				Pos:     compileErr.Pos,
				Err:     err,
			}
		}
		return nil, nil, &LoadError{Code: ErrCodeConfigFailed, Message: err.Error(), Err: err}
	}
	return cfg, compiler.Validate(cfg), nil
}

// BuildConfig loads a configuration and registers it. Validation errors
// are fatal here; the first one is reported.
func BuildConfig(path string) (*subscription.Registry, *ir.ObjectTypes, error) {
	cfg, verrs, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if len(verrs) > 0 {
		first := verrs[0]
		return nil, nil, &LoadError{
			Code:    first.Code,
			Message: fmt.Sprintf("invalid config (%d error(s)): %s", len(verrs), first.Error()),
		}
	}
	registry, types, err := cfg.Build()
	if err != nil {
		return nil, nil, &LoadError{Code: ErrCodeBuildFailed, Message: err.Error(), Err: err}
	}
	return registry, types, nil
}

// LoadBatch decodes a YAML or JSON task batch.
func LoadBatch(path string) ([]ir.Task, error) {
	if err := checkFile(path, "batch"); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBatchFailed, Message: err.Error(), Err: err}
	}
	defer f.Close()

	tasks, err := ir.DecodeBatch(f)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBatchFailed, Message: err.Error(), Err: err}
	}
	return tasks, nil
}

// loadErrorCode returns the code of a *LoadError, or ErrCodeGeneric.
func loadErrorCode(err error) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	return ErrCodeGeneric
}

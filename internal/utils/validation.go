package utils

import (
	"fmt"
	"os"
	"os/exec"
)

// ExecLookPath allows us to mock exec.LookPath in tests
var ExecLookPath = exec.LookPath

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateRequiredDependency checks if a required command is available
func ValidateRequiredDependency(cmd string) error {
	if _, err := ExecLookPath(cmd); err != nil {
		return &ValidationError{
			Field:   cmd,
			Message: fmt.Sprintf("%s not found in PATH", cmd),
			Err:     err,
		}
	}
	return nil
}

// ValidateExternalTools checks that the tools the composition stage
// shells out to are installed.
func ValidateExternalTools() error {
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if err := ValidateRequiredDependency(tool); err != nil {
			return err
		}
	}
	return nil
}

// requiredEnvVars are the backend API keys the stage runners need.
var requiredEnvVars = []string{
	"IMAGEN_API_KEY",
	"VIDEOGEN_API_KEY",
	"SPEECH_API_KEY",
}

// ValidateEnvVars checks that the generation backend credentials are set.
func ValidateEnvVars() error {
	for _, name := range requiredEnvVars {
		if os.Getenv(name) == "" {
			return &ValidationError{
				Field:   name,
				Message: "environment variable is not set",
			}
		}
	}
	return nil
}

// ValidateOutputPath validates an output directory, creating it if needed
func ValidateOutputPath(output string) error {
	if output == "" {
		return &ValidationError{
			Field:   "output",
			Message: "output path is required",
		}
	}
	if err := os.MkdirAll(output, 0755); err != nil {
		return &ValidationError{
			Field:   "output",
			Message: "failed to create output directory",
			Err:     err,
		}
	}
	return nil
}

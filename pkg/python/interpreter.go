package python

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrInterpreterNotFound is returned when no python executable can be located.
var ErrInterpreterNotFound = errors.New("no python interpreter found")

// FindInterpreter resolves the interpreter: the explicit override, then the
// project-local virtualenv, then python3 and python on PATH.
func FindInterpreter(override, venvDir string) (string, error) {
	if override != "" {
		return override, nil
	}

	if venvDir != "" {
		candidate := filepath.Join(venvDir, "bin", "python")
		if runtime.GOOS == "windows" {
			candidate = filepath.Join(venvDir, "Scripts", "python.exe")
		}
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w (checked override, %s and PATH)", ErrInterpreterNotFound, venvDir)
}

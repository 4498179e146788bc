package python

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-notebook/pkg/config"
)

// Execution modes understood by the shim.
const (
	ModeExecution = "EXECUTION"
	ModeSchema    = "SCHEMA"
)

// waitDelay bounds how long Wait blocks on output pipes after the child is
// killed, so grandchildren holding stdout cannot stall a run.
const waitDelay = 2 * time.Second

// Request describes one script run.
type Request struct {
	Code    string
	Mode    string
	Params  map[string]any
	DBURL   string
	Dialect string
}

// Result is the structured outcome returned to the client.
type Result struct {
	Logs       []string        `json:"logs"`
	PlotlyData json.RawMessage `json:"plotlyData,omitempty"`
	SchemaData json.RawMessage `json:"schemaData,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Error      bool            `json:"error,omitempty"`

	ExitCode int           `json:"-"`
	TimedOut bool          `json:"-"`
	Elapsed  time.Duration `json:"-"`
	// Err is a *apperrors.SubprocessSpawnError or *apperrors.ScriptRuntimeError
	// when Error is set.
	Err error `json:"-"`
}

// Runner executes user code in a fresh interpreter per call.
type Runner struct {
	cfg    config.PythonConfig
	llm    config.LLMConfig
	logger *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg config.PythonConfig, llm config.LLMConfig, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, llm: llm, logger: logger.Named("python")}
}

// Run composes, spawns and demultiplexes one script. Failures of the script or
// of the interpreter are reported in the Result; the error return is reserved
// for failures preparing the script on disk.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	mode := normalizeMode(req.Mode)

	script, err := ComposeScript(req.Code)
	if err != nil {
		return nil, err
	}

	path, err := r.writeScript(script)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("Failed to remove python script", zap.String("path", path), zap.Error(err))
		}
	}()

	interpreter, err := FindInterpreter(r.cfg.InterpreterPath, r.cfg.VenvDir)
	if err != nil {
		return r.spawnFailure("", err, started), nil
	}

	env, err := r.environment(req, mode)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if timeout := r.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, interpreter, path)
	cmd.Env = env
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	r.logger.Debug("Running python script",
		zap.String("interpreter", interpreter),
		zap.String("mode", mode),
		zap.Int("code_bytes", len(req.Code)))

	if err := cmd.Start(); err != nil {
		return r.spawnFailure(interpreter, err, started), nil
	}
	waitErr := cmd.Wait()

	out := Demux(stdout.String())
	stderrLines := SplitLines(stderr.String())
	result := &Result{Elapsed: time.Since(started)}

	if waitErr == nil {
		result.Logs = out.Logs
		result.PlotlyData = out.PlotlyData
		result.SchemaData = out.SchemaData
		result.Warnings = stderrLines
		result.Timestamp = time.Now().UTC().Format(time.RFC3339)
		return result, nil
	}

	result.Error = true
	result.Logs = append(out.Logs, stderrLines...)
	result.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.TimedOut = true
		result.Logs = append(result.Logs, fmt.Sprintf("Execution timed out after %s", r.cfg.Timeout()))
	} else if result.ExitCode == -1 {
		result.Logs = append(result.Logs, waitErr.Error())
	}
	result.Err = &apperrors.ScriptRuntimeError{ExitCode: result.ExitCode, TimedOut: result.TimedOut}

	r.logger.Info("Python script failed",
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("elapsed", result.Elapsed))

	return result, nil
}

func (r *Runner) spawnFailure(interpreter string, err error, started time.Time) *Result {
	spawnErr := &apperrors.SubprocessSpawnError{Interpreter: interpreter, Err: err}
	r.logger.Error("Failed to start python", zap.Error(spawnErr))
	return &Result{
		Logs:     []string{spawnErr.Error()},
		Error:    true,
		ExitCode: -1,
		Elapsed:  time.Since(started),
		Err:      spawnErr,
	}
}

func (r *Runner) writeScript(script string) (string, error) {
	dir := r.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("si_%s_%d.py", strings.ReplaceAll(uuid.NewString(), "-", ""), time.Now().UnixNano())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		return "", fmt.Errorf("failed to write python script: %w", err)
	}
	return path, nil
}

func (r *Runner) environment(req Request, mode string) ([]string, error) {
	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode python params: %w", err)
	}

	env := append(os.Environ(),
		"PYTHONUNBUFFERED=1",
		"PYTHONIOENCODING=utf-8",
		"SI_EXECUTION_MODE="+mode,
		"SI_PARAMS="+string(encoded),
		"SI_DB_URL="+req.DBURL,
		"SI_DB_DIALECT="+req.Dialect,
		"SI_CONNECT_TIMEOUT="+strconv.Itoa(r.cfg.DBConnectTimeoutSeconds),
	)
	if r.llm.APIKey != "" {
		env = append(env, "SI_LLM_API_KEY="+r.llm.APIKey)
	}
	if r.llm.BaseURL != "" {
		env = append(env, "SI_LLM_BASE_URL="+r.llm.BaseURL)
	}
	if r.llm.Model != "" {
		env = append(env, "SI_LLM_MODEL="+r.llm.Model)
	}
	return env, nil
}

func normalizeMode(mode string) string {
	if strings.EqualFold(strings.TrimSpace(mode), ModeSchema) {
		return ModeSchema
	}
	return ModeExecution
}

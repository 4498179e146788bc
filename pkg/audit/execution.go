// Package audit provides security audit logging for SIEM consumption.
// Events are logged in structured JSON under the "security_audit" logger
// namespace. Auditing never blocks execution.
package audit

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-notebook/pkg/logging"
	sqlutil "github.com/ekaya-inc/ekaya-notebook/pkg/sql"
)

// EventType categorizes security-relevant events for filtering and alerting.
type EventType string

const (
	// EventSQLInjectionPattern is logged when a Python parameter value
	// fingerprints as SQL injection.
	EventSQLInjectionPattern EventType = "sql_injection_pattern"
	// EventSQLExecution is logged for every user SQL run.
	EventSQLExecution EventType = "sql_execution"
	// EventPythonExecution is logged for every Python run.
	EventPythonExecution EventType = "python_execution"
	// EventDatabaseDropped is logged when an owned database is physically dropped.
	EventDatabaseDropped EventType = "database_dropped"
)

// Event is the JSON document embedded in every audit log line.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Database  string    `json:"database,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Details   any       `json:"details,omitempty"`
	Severity  string    `json:"severity"` // info, warning, critical
}

// InjectionDetails describes a suspicious parameter value.
type InjectionDetails struct {
	ParamName   string `json:"param_name"`
	ParamValue  string `json:"param_value"`
	Fingerprint string `json:"fingerprint"`
}

// ExecutionAuditor logs SQL and Python executions and flags suspicious
// parameter values.
type ExecutionAuditor struct {
	logger *zap.Logger
}

// NewExecutionAuditor creates an auditor with the "security_audit" namespace.
func NewExecutionAuditor(logger *zap.Logger) *ExecutionAuditor {
	return &ExecutionAuditor{logger: logger.Named("security_audit")}
}

func (a *ExecutionAuditor) eventJSON(e Event) string {
	b, _ := json.Marshal(e)
	return string(b)
}

// CheckParameters fingerprints every injected Python parameter and logs each
// match at ERROR level. Returns the number of flagged values.
func (a *ExecutionAuditor) CheckParameters(database string, params map[string]any, clientIP string) int {
	results := sqlutil.CheckAllParameters(params)
	for _, r := range results {
		details := InjectionDetails{
			ParamName:   r.ParamName,
			ParamValue:  logging.TruncateString(r.ParamValue, 200),
			Fingerprint: r.Fingerprint,
		}
		event := Event{
			Timestamp: time.Now().UTC(),
			EventType: EventSQLInjectionPattern,
			Database:  logging.SanitizeConnectionString(database),
			ClientIP:  clientIP,
			Details:   details,
			Severity:  "critical",
		}
		a.logger.Error("SQL injection pattern in parameter",
			zap.String("event_json", a.eventJSON(event)),
			zap.String("param_name", details.ParamName),
			zap.String("fingerprint", details.Fingerprint),
			zap.String("client_ip", clientIP),
			zap.String("severity", "critical"),
		)
	}
	return len(results)
}

// LogSQLExecution records a user SQL run. The query text is sanitized and
// truncated.
func (a *ExecutionAuditor) LogSQLExecution(database, query, clientIP string, elapsed time.Duration, err error) {
	details := map[string]any{
		"query":       logging.SanitizeQuery(query),
		"duration_ms": elapsed.Milliseconds(),
		"success":     err == nil,
	}
	if err != nil {
		details["error"] = logging.SanitizeError(err)
	}

	event := Event{
		Timestamp: time.Now().UTC(),
		EventType: EventSQLExecution,
		Database:  logging.SanitizeConnectionString(database),
		ClientIP:  clientIP,
		Details:   details,
		Severity:  "info",
	}
	a.logger.Info("SQL executed",
		zap.String("event_json", a.eventJSON(event)),
		zap.String("client_ip", clientIP),
		zap.Bool("success", err == nil),
	)
}

// LogPythonExecution records a Python run and its outcome.
func (a *ExecutionAuditor) LogPythonExecution(database, mode, code, clientIP string, exitCode int, timedOut bool, elapsed time.Duration) {
	severity := "info"
	if timedOut {
		severity = "warning"
	}

	event := Event{
		Timestamp: time.Now().UTC(),
		EventType: EventPythonExecution,
		Database:  logging.SanitizeConnectionString(database),
		ClientIP:  clientIP,
		Details: map[string]any{
			"mode":        mode,
			"code":        logging.CodeFingerprint(code),
			"exit_code":   exitCode,
			"timed_out":   timedOut,
			"duration_ms": elapsed.Milliseconds(),
		},
		Severity: severity,
	}
	a.logger.Info("Python executed",
		zap.String("event_json", a.eventJSON(event)),
		zap.String("client_ip", clientIP),
		zap.Int("exit_code", exitCode),
		zap.String("severity", severity),
	)
}

// LogDatabaseDropped records the physical drop of an owned database.
func (a *ExecutionAuditor) LogDatabaseDropped(database, notebookID string) {
	event := Event{
		Timestamp: time.Now().UTC(),
		EventType: EventDatabaseDropped,
		Database:  database,
		Details:   map[string]string{"notebook_id": notebookID},
		Severity:  "warning",
	}
	a.logger.Warn("Database dropped",
		zap.String("event_json", a.eventJSON(event)),
		zap.String("notebook_id", notebookID),
		zap.String("severity", "warning"),
	)
}

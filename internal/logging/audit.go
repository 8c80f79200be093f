// Audit logging: a JSONL trail of research-run events covering the full life
// of a run - stage transitions, LLM calls, searches, fetches, and report
// persistence. One line per event, written only in debug mode.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Run lifecycle events
	AuditRunStart    AuditEventType = "run_start"
	AuditRunComplete AuditEventType = "run_complete"
	AuditRunAbort    AuditEventType = "run_abort"

	// Stage events
	AuditStageStart    AuditEventType = "stage_start"
	AuditStageComplete AuditEventType = "stage_complete"

	// LLM API events
	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"

	// Web access events
	AuditSearchQuery AuditEventType = "search_query"
	AuditSearchError AuditEventType = "search_error"
	AuditFetchPage   AuditEventType = "fetch_page"
	AuditFetchError  AuditEventType = "fetch_error"

	// Evidence events
	AuditEvidenceLost AuditEventType = "evidence_lost"

	// Report events
	AuditReportSaved    AuditEventType = "report_saved"
	AuditReportArchived AuditEventType = "report_archived"
)

// AuditEvent represents one structured audit entry
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`    // Unix milliseconds
	EventType  AuditEventType         `json:"event"` // What happened
	Category   string                 `json:"cat"`   // Log category
	RunID      string                 `json:"run"`   // Run correlation
	Target     string                 `json:"target"`
	Action     string                 `json:"action"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging scoped to a run
type AuditLogger struct {
	runID    string
	category Category
}

// InitAudit initializes the audit logging system
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil // Already initialized
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRun creates an audit logger scoped to a run
func AuditWithRun(runID string) *AuditLogger {
	return &AuditLogger{runID: runID}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RunID == "" && a.runID != "" {
		event.RunID = a.runID
	}
	if event.Category == "" && a.category != "" {
		event.Category = string(a.category)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	auditMu.Lock()
	defer auditMu.Unlock()
	if auditFile == nil {
		return
	}
	auditFile.WriteString(string(data) + "\n")
}

// RunStart records the beginning of a research run
func (a *AuditLogger) RunStart(topic string) {
	a.Log(AuditEvent{
		EventType: AuditRunStart,
		Category:  string(CategoryPipeline),
		Target:    topic,
		Action:    "start",
		Success:   true,
	})
}

// RunComplete records a finished run
func (a *AuditLogger) RunComplete(topic string, dur time.Duration, degraded bool) {
	a.Log(AuditEvent{
		EventType:  AuditRunComplete,
		Category:   string(CategoryPipeline),
		Target:     topic,
		Action:     "complete",
		Success:    true,
		DurationMs: dur.Milliseconds(),
		Fields:     map[string]interface{}{"degraded": degraded},
	})
}

// RunAbort records a run terminated by decomposition failure
func (a *AuditLogger) RunAbort(topic string, err error) {
	evt := AuditEvent{
		EventType: AuditRunAbort,
		Category:  string(CategoryPipeline),
		Target:    topic,
		Action:    "abort",
		Success:   false,
	}
	if err != nil {
		evt.Error = err.Error()
	}
	a.Log(evt)
}

// StageStart records entry into a pipeline stage
func (a *AuditLogger) StageStart(stage string) {
	a.Log(AuditEvent{
		EventType: AuditStageStart,
		Category:  string(CategoryPipeline),
		Target:    stage,
		Action:    "enter",
		Success:   true,
	})
}

// StageComplete records completion of a pipeline stage
func (a *AuditLogger) StageComplete(stage string, dur time.Duration, success bool) {
	a.Log(AuditEvent{
		EventType:  AuditStageComplete,
		Category:   string(CategoryPipeline),
		Target:     stage,
		Action:     "exit",
		Success:    success,
		DurationMs: dur.Milliseconds(),
	})
}

// LLMCall records one completion round-trip
func (a *AuditLogger) LLMCall(provider, model string, dur time.Duration, err error) {
	evt := AuditEvent{
		EventType:  AuditLLMResponse,
		Category:   string(CategoryLLM),
		Target:     provider,
		Action:     model,
		Success:    err == nil,
		DurationMs: dur.Milliseconds(),
	}
	if err != nil {
		evt.EventType = AuditLLMError
		evt.Error = err.Error()
	}
	a.Log(evt)
}

// SearchQuery records one search call
func (a *AuditLogger) SearchQuery(query string, results int, dur time.Duration, err error) {
	evt := AuditEvent{
		EventType:  AuditSearchQuery,
		Category:   string(CategorySearch),
		Target:     query,
		Action:     "search",
		Success:    err == nil,
		DurationMs: dur.Milliseconds(),
		Fields:     map[string]interface{}{"results": results},
	}
	if err != nil {
		evt.EventType = AuditSearchError
		evt.Error = err.Error()
	}
	a.Log(evt)
}

// FetchPage records one page fetch
func (a *AuditLogger) FetchPage(url string, dur time.Duration, err error) {
	evt := AuditEvent{
		EventType:  AuditFetchPage,
		Category:   string(CategoryFetch),
		Target:     url,
		Action:     "fetch",
		Success:    err == nil,
		DurationMs: dur.Milliseconds(),
	}
	if err != nil {
		evt.EventType = AuditFetchError
		evt.Error = err.Error()
	}
	a.Log(evt)
}

// EvidenceLost records a skipped extraction (page fetched but unusable)
func (a *AuditLogger) EvidenceLost(url, reason string) {
	a.Log(AuditEvent{
		EventType: AuditEvidenceLost,
		Category:  string(CategoryCollect),
		Target:    url,
		Action:    "skip",
		Success:   false,
		Message:   reason,
	})
}

// ReportSaved records report file persistence
func (a *AuditLogger) ReportSaved(path string) {
	a.Log(AuditEvent{
		EventType: AuditReportSaved,
		Category:  string(CategoryReport),
		Target:    path,
		Action:    "save",
		Success:   true,
	})
}

// ReportArchived records an archive store insert
func (a *AuditLogger) ReportArchived(id, topic string) {
	a.Log(AuditEvent{
		EventType: AuditReportArchived,
		Category:  string(CategoryStore),
		Target:    topic,
		Action:    "archive",
		Success:   true,
		Fields:    map[string]interface{}{"id": id},
	})
}

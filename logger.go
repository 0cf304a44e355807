package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EventType represents the type of log event
type EventType string

const (
	EventRunStart          EventType = "run_start"
	EventRunEnd            EventType = "run_end"
	EventCaseStart         EventType = "case_start"
	EventCaseEnd           EventType = "case_end"
	EventCaseNormalized    EventType = "case_normalized"
	EventStepSkipped       EventType = "step_skipped"
	EventInterpretFallback EventType = "interpret_fallback"
	EventProviderCall      EventType = "provider_call"
	EventStabilizeStart    EventType = "stabilize_start"
	EventStabilizeStep     EventType = "stabilize_step"
	EventStabilizeEnd      EventType = "stabilize_end"
	EventWarning           EventType = "warning"
	EventError             EventType = "error"
)

// Event represents a single log event
type Event struct {
	Timestamp time.Time              `json:"ts"`
	Type      EventType              `json:"type"`
	CaseID    string                 `json:"case,omitempty"`
	Duration  *int64                 `json:"duration,omitempty"` // nanoseconds
	Success   *bool                  `json:"success,omitempty"`
	Message   string                 `json:"msg,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// RunLogger handles logging for a single resolution run
type RunLogger struct {
	file        *os.File
	encoder     *json.Encoder
	mu          sync.Mutex
	runNumber   int
	currentCase string
	startTime   time.Time
	enabled     bool
	config      *LoggingConfig

	caseStart time.Time
}

// LoggingConfig configures the logging system
type LoggingConfig struct {
	Enabled           bool `json:"enabled" yaml:"enabled"`
	MaxRuns           int  `json:"maxRuns" yaml:"maxRuns"`
	ConsoleTimestamps bool `json:"consoleTimestamps" yaml:"consoleTimestamps"`
}

// DefaultLoggingConfig returns sensible defaults
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Enabled:           true,
		MaxRuns:           10,
		ConsoleTimestamps: true,
	}
}

// NewRunLogger creates a new logger writing under outputDir/logs
func NewRunLogger(outputDir string, config *LoggingConfig) (*RunLogger, error) {
	if config == nil {
		config = DefaultLoggingConfig()
	}

	logger := &RunLogger{
		startTime: time.Now(),
		enabled:   config.Enabled,
		config:    config,
	}

	if !config.Enabled {
		return logger, nil
	}

	logsDir := filepath.Join(outputDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logger.runNumber = nextRunNumber(logsDir)

	if config.MaxRuns > 0 {
		rotateOldRuns(logsDir, config.MaxRuns)
	}

	logPath := filepath.Join(logsDir, fmt.Sprintf("run-%03d.jsonl", logger.runNumber))
	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger.file = file
	logger.encoder = json.NewEncoder(file)

	return logger, nil
}

// Close closes the log file
func (l *RunLogger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// RunNumber returns the current run number
func (l *RunLogger) RunNumber() int {
	return l.runNumber
}

// LogPath returns the path to the current log file
func (l *RunLogger) LogPath() string {
	if l.file != nil {
		return l.file.Name()
	}
	return ""
}

// SetCurrentCase sets the test case ID attached to subsequent events
func (l *RunLogger) SetCurrentCase(id string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentCase = id
}

// Log writes a generic event
func (l *RunLogger) Log(eventType EventType, data map[string]interface{}) {
	l.logEvent(Event{Type: eventType, Data: data})
}

// logEvent is an internal helper that writes an event with all fields
func (l *RunLogger) logEvent(event Event) {
	if l == nil || !l.enabled || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.CaseID == "" {
		event.CaseID = l.currentCase
	}

	l.encoder.Encode(event)
}

// Convenience methods for specific event types

// RunStart logs the start of a resolution run
func (l *RunLogger) RunStart(source string, caseCount int) {
	if l == nil {
		return
	}
	l.logEvent(Event{
		Type: EventRunStart,
		Data: map[string]interface{}{
			"source":     source,
			"cases":      caseCount,
			"run_number": l.runNumber,
		},
	})
}

// RunEnd logs the end of a resolution run
func (l *RunLogger) RunEnd(success bool, summary string) {
	if l == nil {
		return
	}
	duration := time.Since(l.startTime).Nanoseconds()
	l.logEvent(Event{
		Type:     EventRunEnd,
		Duration: &duration,
		Success:  &success,
		Message:  summary,
	})
}

// CaseStart logs the start of one test case's resolution
func (l *RunLogger) CaseStart(caseID, title string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.caseStart = time.Now()
	l.mu.Unlock()
	l.logEvent(Event{
		Type:   EventCaseStart,
		CaseID: caseID,
		Data: map[string]interface{}{
			"title": title,
		},
	})
}

// CaseEnd logs the end of one test case's resolution
func (l *RunLogger) CaseEnd(caseID string, success bool, pages int) {
	if l == nil {
		return
	}
	l.mu.Lock()
	duration := time.Since(l.caseStart).Nanoseconds()
	l.mu.Unlock()
	l.logEvent(Event{
		Type:     EventCaseEnd,
		CaseID:   caseID,
		Duration: &duration,
		Success:  &success,
		Data: map[string]interface{}{
			"pages": pages,
		},
	})
}

// StabilizeStart logs the start of selector stabilization for a page
func (l *RunLogger) StabilizeStart(page, url string) {
	l.logEvent(Event{
		Type: EventStabilizeStart,
		Data: map[string]interface{}{
			"page": page,
			"url":  url,
		},
	})
}

// StabilizeEnd logs the end of selector stabilization for a page
func (l *RunLogger) StabilizeEnd(page string, improved int, degraded bool) {
	success := !degraded
	l.logEvent(Event{
		Type:    EventStabilizeEnd,
		Success: &success,
		Data: map[string]interface{}{
			"page":     page,
			"improved": improved,
			"degraded": degraded,
		},
	})
}

// Warn logs a warning message
func (l *RunLogger) Warn(msg string) {
	l.logEvent(Event{
		Type:    EventWarning,
		Message: msg,
	})
}

// Warnf logs a formatted warning message
func (l *RunLogger) Warnf(format string, args ...interface{}) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *RunLogger) Error(msg string, err error) {
	data := make(map[string]interface{})
	if err != nil {
		data["error"] = err.Error()
	}
	l.logEvent(Event{
		Type:    EventError,
		Message: msg,
		Data:    data,
	})
}

// Console output helpers with timestamps

// LogPrint prints a timestamped message to stdout
func (l *RunLogger) LogPrint(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l != nil && l.config != nil && l.config.ConsoleTimestamps {
		timestamp := time.Now().Format("15:04:05")
		fmt.Printf("[%s] %s", timestamp, msg)
	} else {
		fmt.Print(msg)
	}
}

// LogPrintln prints a timestamped message with newline to stdout
func (l *RunLogger) LogPrintln(args ...interface{}) {
	msg := fmt.Sprint(args...)
	if l != nil && l.config != nil && l.config.ConsoleTimestamps {
		timestamp := time.Now().Format("15:04:05")
		fmt.Printf("[%s] %s\n", timestamp, msg)
	} else {
		fmt.Println(msg)
	}
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d.Milliseconds()))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// Helper functions

// nextRunNumber determines the next run number based on existing logs
func nextRunNumber(logsDir string) int {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return 1
	}

	maxRun := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "run-") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		numStr := strings.TrimPrefix(name, "run-")
		numStr = strings.TrimSuffix(numStr, ".jsonl")
		if num, err := strconv.Atoi(numStr); err == nil && num > maxRun {
			maxRun = num
		}
	}

	return maxRun + 1
}

// rotateOldRuns deletes runs beyond maxRuns (keeps most recent)
func rotateOldRuns(logsDir string, maxRuns int) {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return
	}

	var runFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "run-") && strings.HasSuffix(name, ".jsonl") {
			runFiles = append(runFiles, name)
		}
	}

	if len(runFiles) <= maxRuns {
		return
	}

	sort.Slice(runFiles, func(i, j int) bool {
		return extractRunNumber(runFiles[i]) < extractRunNumber(runFiles[j])
	})

	toDelete := len(runFiles) - maxRuns
	for i := 0; i < toDelete; i++ {
		os.Remove(filepath.Join(logsDir, runFiles[i]))
	}
}

// extractRunNumber extracts the run number from a filename like "run-001.jsonl"
func extractRunNumber(filename string) int {
	numStr := strings.TrimPrefix(filename, "run-")
	numStr = strings.TrimSuffix(numStr, ".jsonl")
	num, _ := strconv.Atoi(numStr)
	return num
}

// ReadEvents reads events from a log file with optional filtering
func ReadEvents(logPath string, filter *EventFilter) ([]Event, error) {
	file, err := os.Open(logPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadEventsFromReader(file, filter)
}

// ReadEventsFromReader reads events from an io.Reader with optional filtering
func ReadEventsFromReader(r io.Reader, filter *EventFilter) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		if filter != nil && !filter.Match(&event) {
			continue
		}

		events = append(events, event)
	}

	return events, scanner.Err()
}

// EventFilter filters events when reading logs
type EventFilter struct {
	EventType EventType
	CaseID    string
}

// Match returns true if the event matches the filter
func (f *EventFilter) Match(event *Event) bool {
	if f.EventType != "" && event.Type != f.EventType {
		return false
	}
	if f.CaseID != "" && event.CaseID != f.CaseID {
		return false
	}
	return true
}

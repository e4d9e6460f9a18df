package monitor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// AuditLog is an append-only JSON lines record of bursts and warnings
type AuditLog struct {
	file *os.File
	mu   sync.Mutex
}

// NewAuditLog opens (or creates) the audit log at path
func NewAuditLog(path string) (*AuditLog, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &AuditLog{
		file: file,
	}, nil
}

// WriteAlert appends one alert as a JSON line
func (a *AuditLog) WriteAlert(b BurstAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return fmt.Errorf("audit log is closed")
	}

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}

	return a.file.Sync()
}

// Close closes the audit log file
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}

	return nil
}

// ReadAuditLog reads an audit log, skipping lines that do not decode
func ReadAuditLog(path string) ([]BurstAlert, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer file.Close()

	var alerts []BurstAlert
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var b BurstAlert
		if err := json.Unmarshal(line, &b); err != nil {
			continue
		}
		alerts = append(alerts, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	return alerts, nil
}

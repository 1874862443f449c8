package store

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// PlanStore is the append-only record sink the chain writes into.
// Implementations must make each appended record durable before returning:
// a killed run leaves a valid, resumable partial ensemble.
type PlanStore interface {
	Append(rec PlanRecord) error
	Close() error
}

// FileStore writes one JSON record per line to a file, syncing after every
// append. It must not be shared between concurrent writers.
type FileStore struct {
	path string
	file *os.File
	log  *zap.Logger
}

// NewFileStore creates (or truncates) the output file.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan store %s: %w", path, err)
	}
	s := &FileStore{
		path: path,
		file: f,
		log:  logger.Named("store"),
	}
	s.log.Info("Opened plan store", zap.String("path", path))
	return s, nil
}

// Append serializes the record, writes it as one line, and fsyncs.
// Durability is favored over write throughput here.
func (s *FileStore) Append(rec PlanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal plan record %d: %w", rec.Index, err)
	}
	data = append(data, '\n')
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("failed to write plan record %d: %w", rec.Index, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync plan store: %w", err)
	}
	return nil
}

// Close releases the file handle.
func (s *FileStore) Close() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close plan store %s: %w", s.path, err)
	}
	s.log.Debug("Closed plan store", zap.String("path", s.path))
	return nil
}

// ReadFile streams every record back from an NDJSON ensemble file, in the
// order written. Blank lines are skipped so files from interrupted or
// hand-edited runs still load.
func ReadFile(path string) ([]PlanRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ensemble file %s: %w", path, err)
	}
	defer f.Close()

	var records []PlanRecord
	scanner := bufio.NewScanner(f)
	// Large plans produce long lines; a statewide precinct assignment can
	// run to several megabytes.
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec PlanRecord
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse plan record on line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ensemble file %s: %w", path, err)
	}
	return records, nil
}

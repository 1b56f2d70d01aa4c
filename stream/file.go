package stream

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/upb/activity-pipeline/models"
	"go.uber.org/zap"
)

// FileRecord is one line of the JSONL stream. Hash covers PrevHash and Event.
type FileRecord struct {
	Event    *models.ActivityStreamEvent `json:"event"`
	PrevHash string                      `json:"prev_hash"`
	Hash     string                      `json:"hash"`
}

// FileStore appends events to a JSONL file where each record chains the previous hash
type FileStore struct {
	mu       sync.Mutex
	file     *os.File
	lastHash string
	logger   *zap.Logger
}

// NewFileStore opens (or creates) the stream file and resumes the hash chain
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create stream dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open stream file: %w", err)
	}

	lastHash, _, err := scanChain(file, false)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	logger.Info("file activity stream ready", zap.String("path", path))
	return &FileStore{file: file, lastHash: lastHash, logger: logger}, nil
}

// Append writes and syncs one record
func (s *FileStore) Append(_ context.Context, event *models.ActivityStreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return ErrClosed
	}

	record := FileRecord{Event: event, PrevHash: s.lastHash}
	hash, err := recordHash(&record)
	if err != nil {
		return err
	}
	record.Hash = hash

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal stream record: %w", err)
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write stream record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync stream file: %w", err)
	}

	s.lastHash = hash
	return nil
}

// LastHash returns the hash of the newest record
func (s *FileStore) LastHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash
}

// Close closes the file
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// VerifyFile checks the hash chain of a stream file and returns the number of records
func VerifyFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open stream file: %w", err)
	}
	defer file.Close()

	_, n, err := scanChain(file, true)
	return n, err
}

// scanChain reads every record and returns the last hash. With verify set, a broken
// link or hash is an error; otherwise malformed lines are skipped.
func scanChain(r io.ReadSeeker, verify bool) (string, int, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", 0, fmt.Errorf("seek stream file: %w", err)
	}

	var (
		last string
		n    int
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var record FileRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			if verify {
				return last, n, fmt.Errorf("record %d: %w", n+1, err)
			}
			continue
		}
		if verify {
			if record.PrevHash != last {
				return last, n, fmt.Errorf("record %d: %w", n+1, ErrBrokenChain)
			}
			want, err := recordHash(&record)
			if err != nil {
				return last, n, err
			}
			if want != record.Hash {
				return last, n, fmt.Errorf("record %d: %w", n+1, ErrBrokenChain)
			}
		}
		last = record.Hash
		n++
	}
	if err := scanner.Err(); err != nil {
		return last, n, fmt.Errorf("scan stream file: %w", err)
	}
	return last, n, nil
}

// ErrBrokenChain reports a record whose hash or link does not match
var ErrBrokenChain = errors.New("stream hash chain broken")

func recordHash(record *FileRecord) (string, error) {
	data, err := json.Marshal(struct {
		PrevHash string                      `json:"prev_hash"`
		Event    *models.ActivityStreamEvent `json:"event"`
	}{record.PrevHash, record.Event})
	if err != nil {
		return "", fmt.Errorf("marshal record for hash: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

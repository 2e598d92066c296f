package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
)

const (
	recordExt    = ".json"
	lockFileName = "queue.lock"
)

// recordName maps a job id to its file name. Ids that are not UUIDs are
// rejected so callers cannot address files outside the queue directory.
func recordName(id string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: invalid job id %q", domain.ErrNotFound, id)
	}
	return id + recordExt, nil
}

func isRecordName(name string) bool {
	return strings.HasSuffix(name, recordExt) && !strings.HasPrefix(name, ".")
}

func readRecord(path string) (*domain.AlarmJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("read job record %s: %w", path, err)
	}

	var job domain.AlarmJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCorruptRecord, filepath.Base(path), err)
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if job.ID+recordExt != filepath.Base(path) {
		return nil, fmt.Errorf("%w: %s holds job %s", domain.ErrCorruptRecord, filepath.Base(path), job.ID)
	}
	return &job, nil
}

// writeRecord publishes job under its final name. The record is written to a
// temp file in the same directory and renamed over the final name; the rename
// is the only step that makes the new content visible. When expectVersion is
// non-zero the record on disk must still carry that version at publish time.
func writeRecord(dir string, job *domain.AlarmJob, expectVersion int64) (err error) {
	name, err := recordName(job.ID)
	if err != nil {
		return err
	}
	finalPath := filepath.Join(dir, name)

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	tmp, err := os.CreateTemp(dir, "."+job.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record for job %s: %w", job.ID, err)
	}
	tmpPath := tmp.Name()
	published := false
	defer func() {
		if !published {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp record for job %s: %w", job.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp record for job %s: %w", job.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record for job %s: %w", job.ID, err)
	}

	if expectVersion != 0 {
		current, err := readRecord(finalPath)
		if err != nil {
			return err
		}
		if current.Version != expectVersion {
			return fmt.Errorf("%w: job %s is at version %d, expected %d", domain.ErrVersionConflict, job.ID, current.Version, expectVersion)
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("publish job record %s: %w", job.ID, err)
	}
	published = true

	return syncDir(dir)
}

// syncDir makes the rename itself durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open queue dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync queue dir: %w", err)
	}
	return nil
}

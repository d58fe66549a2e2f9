package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
)

// Params is the caller-supplied checkpoint metadata persisted alongside
// the current pointer (epoch number, monitored metric value, ...)
type Params map[string]interface{}

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// saveStatus persists the current pointer and params. The write goes
// through a temp file with fsync and rename so a crashed writer never
// leaves a status whose checkpoint key disagrees with the pointer.
func (m *Monitor) saveStatus() error {
	status := m.params.clone()
	status[statusCheckpointKey] = m.current

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	tempPath := m.statePath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary status file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync status file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close status file: %w", err)
	}
	if err := os.Rename(tempPath, m.statePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace status file: %w", err)
	}
	return nil
}

// loadStatus reads the persisted status. Any corruption (unreadable file,
// malformed JSON, missing checkpoint key) degrades to a logged reset and
// never propagates. With resetOnDead set, a status naming a checkpoint
// file that is no longer readable also degrades to reset.
func (m *Monitor) loadStatus(resetOnDead bool) error {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		m.logger.WithError(err).Warn("cannot read status file, resetting")
		return m.Reset()
	}

	var params Params
	if err := json.Unmarshal(data, &params); err != nil {
		m.logger.WithError(err).Warn("malformed status file, resetting")
		return m.Reset()
	}
	cp, ok := params[statusCheckpointKey].(string)
	if !ok {
		m.logger.Warn("status file missing checkpoint key, resetting")
		return m.Reset()
	}
	delete(params, statusCheckpointKey)

	m.addCheckpoint(cp, params)

	if resetOnDead && m.current != "" && !isReadableFile(m.current) {
		m.logger.WithField("checkpoint", m.current).Warn("current checkpoint not available, resetting")
		return m.Reset()
	}
	return nil
}

func isReadableFile(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

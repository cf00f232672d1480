package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/asimalsarhani/portal-runner/pkg/core"
)

// FileName is the report file inside the output directory.
const FileName = "report.json"

// Write stores r as dir/report.json.
func Write(dir string, r *Report) error {
	if r.Version == "" {
		r.Version = Version
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return core.ErrFilesystem.WithCause(err)
	}
	if err := atomicWriteJSON(filepath.Join(dir, FileName), r); err != nil {
		return core.ErrFilesystem.WithCause(err)
	}
	return nil
}

// Read loads dir/report.json.
func Read(dir string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName)) //#nosec G304 -- report dir from caller
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}

// atomicWriteJSON writes v to a temp file and renames it over path, so
// readers never see a partial report.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil { //#nosec G302 -- report is meant to be shared
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

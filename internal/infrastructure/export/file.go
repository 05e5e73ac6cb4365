package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ContentCurator/internal/domain"
	"ContentCurator/internal/ports"
)

// FileExporter writes every finished run as <base>.json and <base>.md.
type FileExporter struct {
	dir string
}

var _ ports.Exporter = (*FileExporter)(nil)

// NewFileExporter targets dir, creating it on first export.
func NewFileExporter(dir string) *FileExporter {
	return &FileExporter{dir: dir}
}

// Export writes both renditions of report.
func (e *FileExporter) Export(_ context.Context, report domain.RunReport) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	data, err := RenderJSON(report)
	if err != nil {
		return err
	}
	base := filepath.Join(e.dir, BaseName(report))
	if err := writeAtomic(base+".json", data); err != nil {
		return err
	}
	return writeAtomic(base+".md", RenderMarkdown(report))
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/OCAP2/tickbridge/pkg/core"
)

// JournalExport is the root JSON structure
type JournalExport struct {
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Count     int            `json:"count"`
	Kinds     map[string]int `json:"kinds"`
	Records   []core.Record  `json:"records"`
}

// exportJSON writes the journal to journal_<start>.json, gzipped when
// configured. The caller holds the lock.
func (b *Backend) exportJSON(end time.Time) error {
	export := b.buildExport(end)

	filename := fmt.Sprintf("journal_%s.json", b.start.Format("20060102_150405"))
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport(end time.Time) JournalExport {
	kinds := make(map[string]int, len(b.kinds))
	for k, n := range b.kinds {
		kinds[k] = n
	}
	records := b.records
	if records == nil {
		records = []core.Record{}
	}
	return JournalExport{
		StartTime: b.start,
		EndTime:   end,
		Count:     len(b.records),
		Kinds:     kinds,
		Records:   records,
	}
}

func writeExport(path string, data JournalExport, compress bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()

	var w io.Writer = f
	if compress {
		gzWriter := gzip.NewWriter(f)
		defer func() {
			if cerr := gzWriter.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("failed to finish gzip stream: %w", cerr)
			}
		}()
		w = gzWriter
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode journal: %w", err)
	}
	return nil
}

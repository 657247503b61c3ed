package pdf

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// BuildArchive zips the per-page documents as page-001.pdf, page-002.pdf, ...
// together with an index.json listing the TOC entries.
func BuildArchive(individual [][]byte, toc []TOCEntry, modified time.Time) ([]byte, error) {
	if len(individual) == 0 {
		return nil, ErrNoPages
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for i, data := range individual {
		if err := writeEntry(zw, ArchiveEntryName(i+1), data, modified); err != nil {
			return nil, err
		}
	}
	index, err := json.MarshalIndent(toc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal archive index: %w", err)
	}
	if err := writeEntry(zw, "index.json", index, modified); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// ArchiveEntryName is the file name used for the n-th page (1-based).
func ArchiveEntryName(n int) string {
	return fmt.Sprintf("page-%03d.pdf", n)
}

func writeEntry(zw *zip.Writer, name string, data []byte, modified time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	return nil
}

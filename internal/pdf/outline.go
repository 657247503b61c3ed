package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
)

// outlineTarget is one bookmark: a title and the physical page it opens.
type outlineTarget struct {
	Title string
	Page  int
}

// addOutline writes a flat document outline with one bookmark per target.
func addOutline(data []byte, targets []outlineTarget) ([]byte, error) {
	if len(targets) == 0 {
		return data, nil
	}
	bookmarks := make([]pdfcpu.Bookmark, 0, len(targets))
	for _, t := range targets {
		bookmarks = append(bookmarks, pdfcpu.Bookmark{Title: t.Title, PageFrom: t.Page})
	}
	var out bytes.Buffer
	if err := api.AddBookmarks(bytes.NewReader(data), &out, bookmarks, true, pdfcpuConfig()); err != nil {
		return nil, fmt.Errorf("add bookmarks: %w", err)
	}
	return out.Bytes(), nil
}

// addProperties stores custom key/value pairs in the document info dictionary.
func addProperties(data []byte, props map[string]string) ([]byte, error) {
	if len(props) == 0 {
		return data, nil
	}
	var out bytes.Buffer
	if err := api.AddProperties(bytes.NewReader(data), &out, props, pdfcpuConfig()); err != nil {
		return nil, fmt.Errorf("add properties: %w", err)
	}
	return out.Bytes(), nil
}

package pdf

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var disableConfigDir sync.Once

// pdfcpuConfig returns a fresh relaxed-validation configuration that never
// touches the user config directory.
func pdfcpuConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in a PDF.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), pdfcpuConfig())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// PageDims returns the media box size of every page, in points.
func PageDims(data []byte) ([]types.Dim, error) {
	dims, err := api.PageDims(bytes.NewReader(data), pdfcpuConfig())
	if err != nil {
		return nil, fmt.Errorf("read page dimensions: %w", err)
	}
	return dims, nil
}

// Validate reports whether data is a well-formed PDF.
func Validate(data []byte) error {
	if err := api.Validate(bytes.NewReader(data), pdfcpuConfig()); err != nil {
		return fmt.Errorf("validate pdf: %w", err)
	}
	return nil
}

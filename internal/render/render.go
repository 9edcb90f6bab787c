package render

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// DefaultDPI matches the original conversion resolution; lower values save
// tokens at the cost of legibility on dense pages.
const DefaultDPI = 300

// PageCount returns the number of pages without rendering anything, so
// start-page validation can run before the expensive rasterization.
func PageCount(pdfPath string) (int, error) {
	n, err := api.PageCountFile(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return n, nil
}

// PDFToImages renders every page of the PDF at the given DPI and returns the
// pages as PNG-encoded byte buffers, in page order.
func PDFToImages(pdfPath string, dpi int) ([][]byte, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	pages := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("failed to render page %d: %w", i+1, err)
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", i+1, err)
		}

		log.Debug().
			Int("page", i+1).
			Int("png_size", buf.Len()).
			Int("dpi", dpi).
			Msg("rendered page to PNG")
		pages = append(pages, buf.Bytes())
	}

	log.Info().Int("pages", total).Int("dpi", dpi).Str("pdf", pdfPath).Msg("converted PDF pages to images")
	return pages, nil
}

package filetype

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind classifies an input document by its magic bytes, not its filename.
type Kind int

const (
	Unknown Kind = iota
	PDF
	Image
)

func (k Kind) String() string {
	switch k {
	case PDF:
		return "pdf"
	case Image:
		return "image"
	default:
		return "unknown"
	}
}

// Info carries the detected type of an input file.
type Info struct {
	Kind     Kind
	MIMEType string
}

// Detect sniffs the file content and decides whether the input is a PDF to
// rasterize or a standalone image to send as a single page.
func Detect(path string) (Info, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to detect file type: %w", err)
	}

	mime := mtype.String()
	log.Debug().Str("mime", mime).Str("file", path).Msg("detected input type")

	switch {
	case mime == "application/pdf":
		return Info{Kind: PDF, MIMEType: mime}, nil
	case strings.HasPrefix(mime, "image/"):
		return Info{Kind: Image, MIMEType: mime}, nil
	default:
		return Info{Kind: Unknown, MIMEType: mime}, fmt.Errorf("unsupported input type %s (want a PDF or an image)", mime)
	}
}

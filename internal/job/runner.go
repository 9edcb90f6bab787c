package job

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdf2md/internal/backend"
	"github.com/local/pdf2md/internal/metrics"
	"github.com/local/pdf2md/internal/resume"
)

// DefaultPrompt is the base extraction instruction sent with every page.
const DefaultPrompt = "Extract all readable text from these images and format it as structured Markdown."

// ImagePrompt is used when the input is a standalone image rather than a
// rendered PDF page.
const ImagePrompt = "Extract all readable text and text chunks from this image" +
	" and format it as structured Markdown." +
	" Look in the entire image always and try to retrieve all text!"

const blockSeparator = "\n\n---\n\n"

// StartPageError reports a start page beyond the document. Nothing is written
// and no backend call is made.
type StartPageError struct {
	StartPage  int
	TotalPages int
}

func (e *StartPageError) Error() string {
	return fmt.Sprintf("start page %d is greater than total pages (%d)", e.StartPage, e.TotalPages)
}

// Options configures a conversion job. One Runner serves one job run.
type Options struct {
	Backend    backend.Generator
	Kind       backend.Kind
	Model      string
	OutputPath string
	Prompt     string // base instruction; DefaultPrompt when empty
	StartPage  int    // 1-based; values < 1 are clamped to 1
}

// Runner converts an ordered sequence of page images into a Markdown
// document, one inference call per page, persisting after every page so an
// interrupted job can resume from its own output.
type Runner struct {
	opts  Options
	jobID string
}

func NewRunner(opts Options) *Runner {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.StartPage < 1 {
		opts.StartPage = 1
	}
	return &Runner{opts: opts, jobID: uuid.New().String()}
}

// writeMode captures how the output file was opened for this run.
type writeMode int

const (
	freshStart writeMode = iota
	resumedAppend
)

// writeState makes the separator decision a pure function of the run state
// instead of scattered conditionals.
type writeState struct {
	mode              writeMode
	fileHadContent    bool
	firstBlockWritten bool
}

// needsSeparator reports whether a `---` divider must precede the next block.
func (s writeState) needsSeparator() bool {
	if s.firstBlockWritten {
		return true
	}
	return s.mode == resumedAppend && s.fileHadContent
}

// Run processes pages in ascending order, skipping pages below the start page
// and pages already present in the output. The first backend failure is fatal
// for the job; everything written so far stays on disk as valid partial state
// for a later resume.
func (r *Runner) Run(ctx context.Context, pages [][]byte) error {
	total := len(pages)
	startPage := r.opts.StartPage

	if startPage > total {
		err := &StartPageError{StartPage: startPage, TotalPages: total}
		log.Error().
			Str("job_id", r.jobID).
			Int("start_page", startPage).
			Int("total_pages", total).
			Msg("error: " + err.Error())
		return err
	}

	completed := resume.CompletedPages(r.opts.OutputPath)
	if len(completed) > 0 {
		log.Info().
			Str("job_id", r.jobID).
			Int("completed", len(completed)).
			Str("output", r.opts.OutputPath).
			Msg("found previous output, resuming")
	}

	state := writeState{mode: freshStart}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if info, err := os.Stat(r.opts.OutputPath); err == nil && (startPage > 1 || len(completed) > 0) {
		state.mode = resumedAppend
		state.fileHadContent = info.Size() > 0
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}

	out, err := os.OpenFile(r.opts.OutputPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open output %s: %w", r.opts.OutputPath, err)
	}
	defer out.Close()

	for p := 1; p <= total; p++ {
		if p < startPage {
			log.Info().Str("job_id", r.jobID).Int("page", p).Msg("skipping page before start page")
			metrics.IncPage("skipped")
			continue
		}
		if _, done := completed[p]; done {
			log.Info().Str("job_id", r.jobID).Int("page", p).Msg("skipping already completed page")
			metrics.IncPage("skipped")
			continue
		}

		log.Info().
			Str("job_id", r.jobID).
			Int("page", p).
			Int("total", total).
			Str("backend", r.opts.Backend.Name()).
			Str("model", r.opts.Model).
			Msg("processing page")

		prompt := fmt.Sprintf("%s This is page %d of %d.", r.opts.Prompt, p, total)
		text, err := r.opts.Backend.Generate(ctx, r.opts.Model, prompt, [][]byte{pages[p-1]})
		if err != nil {
			metrics.IncPage("failed")
			log.Error().Err(err).Str("job_id", r.jobID).Int("page", p).Msg("page processing failed, stopping job")
			return fmt.Errorf("page %d: %w", p, err)
		}

		if err := r.writeBlock(out, &state, p, text); err != nil {
			return err
		}
		metrics.IncPage("success")
		log.Info().Str("job_id", r.jobID).Int("page", p).Msg("page written")
	}

	return nil
}

// writeBlock appends one page block and flushes it to disk, so a crash after
// this point loses at most the in-flight page.
func (r *Runner) writeBlock(out *os.File, state *writeState, page int, text string) error {
	var b strings.Builder
	if state.needsSeparator() {
		b.WriteString(blockSeparator)
	}
	fmt.Fprintf(&b, "## Page %d\n\n%s", page, strings.TrimSpace(text))

	if _, err := out.WriteString(b.String()); err != nil {
		return fmt.Errorf("write page %d: %w", page, err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("flush page %d: %w", page, err)
	}
	state.firstBlockWritten = true
	return nil
}

// RunBatch is the simple non-progressive path: everything is accumulated in
// memory and written in one shot at the end. No resume support. The local
// backend takes all images in a single call; the metered remote backend still
// goes page by page.
func (r *Runner) RunBatch(ctx context.Context, pages [][]byte) error {
	total := len(pages)

	var document string
	if r.opts.Kind == backend.Local {
		text, err := r.opts.Backend.Generate(ctx, r.opts.Model, r.opts.Prompt, pages)
		if err != nil {
			return fmt.Errorf("batch conversion: %w", err)
		}
		document = text
	} else {
		blocks := make([]string, 0, total)
		for p := 1; p <= total; p++ {
			prompt := fmt.Sprintf("%s This is page %d of %d.", r.opts.Prompt, p, total)
			text, err := r.opts.Backend.Generate(ctx, r.opts.Model, prompt, [][]byte{pages[p-1]})
			if err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			blocks = append(blocks, fmt.Sprintf("## Page %d\n\n%s", p, strings.TrimSpace(text)))
		}
		document = strings.Join(blocks, blockSeparator)
	}

	if err := os.WriteFile(r.opts.OutputPath, []byte(document), 0o644); err != nil {
		return fmt.Errorf("write output %s: %w", r.opts.OutputPath, err)
	}
	log.Info().Str("job_id", r.jobID).Int("pages", total).Str("output", r.opts.OutputPath).Msg("batch conversion complete")
	return nil
}

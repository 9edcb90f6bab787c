package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/pdf2md/internal/backend"
	cfgpkg "github.com/local/pdf2md/internal/config"
	"github.com/local/pdf2md/internal/filetype"
	"github.com/local/pdf2md/internal/job"
	logpkg "github.com/local/pdf2md/internal/logger"
	"github.com/local/pdf2md/internal/metrics"
	"github.com/local/pdf2md/internal/modelmap"
	"github.com/local/pdf2md/internal/ollama"
	"github.com/local/pdf2md/internal/openrouter"
	"github.com/local/pdf2md/internal/render"
	"github.com/local/pdf2md/internal/resume"
	"github.com/local/pdf2md/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	var (
		inPath      = flag.String("in", "", "input document: PDF or image file, or s3://bucket/key")
		outPath     = flag.String("out", "output.md", "output Markdown file")
		backendName = flag.String("backend", string(backend.Local), "inference backend: local or openrouter")
		model       = flag.String("model", "gemma3:12b", "model id (translated for the remote backend)")
		startPage   = flag.Int("start-page", 1, "1-based page to start from (resume skips completed pages regardless)")
		batch       = flag.Bool("batch", false, "batch mode: single write at the end, no resume support")
		dpi         = flag.Int("dpi", cfg.Render.DPI, "rasterization DPI for PDF pages")
		prompt      = flag.String("prompt", "", "override the extraction prompt")
		s3Out       = flag.String("s3-out", "", "optional s3://bucket/key to upload the finished Markdown")
		listModels  = flag.Bool("list-models", false, "list available OpenRouter models and exit")
	)
	flag.Parse()

	metrics.Init()
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	ctx := context.Background()

	if *listModels {
		client, err := newOpenRouterClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("configuration error")
		}
		models, err := client.ListModels(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to list models")
		}
		for _, m := range models {
			fmt.Println(m.ID)
		}
		return
	}

	if *inPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	kind, err := backend.ParseKind(*backendName)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	localPath := *inPath
	if storage.IsS3Path(localPath) {
		tmp, err := storage.DownloadToTemp(ctx, localPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to fetch input from S3")
		}
		defer os.Remove(tmp)
		localPath = tmp
	}

	info, err := filetype.Detect(localPath)
	if err != nil {
		log.Fatal().Err(err).Msg("unsupported input")
	}

	var pages [][]byte
	basePrompt := *prompt
	switch info.Kind {
	case filetype.PDF:
		total, err := render.PageCount(localPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read PDF")
		}
		if *startPage > total {
			log.Fatal().
				Int("start_page", *startPage).
				Int("total_pages", total).
				Msg(fmt.Sprintf("error: start page %d is greater than total pages (%d)", *startPage, total))
		}
		pages, err = render.PDFToImages(localPath, *dpi)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to render PDF")
		}
	case filetype.Image:
		data, err := os.ReadFile(localPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read image")
		}
		pages = [][]byte{data}
		if basePrompt == "" {
			basePrompt = job.ImagePrompt
		}
	}
	if len(pages) == 0 {
		log.Fatal().Str("input", *inPath).Msg("no pages found in the input document")
	}

	gen, jobModel, err := buildBackend(cfg, kind, *model)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	runner := job.NewRunner(job.Options{
		Backend:    gen,
		Kind:       kind,
		Model:      jobModel,
		OutputPath: *outPath,
		Prompt:     basePrompt,
		StartPage:  *startPage,
	})

	if *batch {
		err = runner.RunBatch(ctx, pages)
	} else {
		err = runner.Run(ctx, pages)
	}
	if err != nil {
		// Partial output stays on disk; the next run with the same -out
		// resumes from it automatically.
		log.Fatal().Err(err).Str("output", *outPath).Msg("conversion failed")
	}

	if *s3Out != "" {
		if err := storage.UploadFile(ctx, *outPath, *s3Out); err != nil {
			log.Fatal().Err(err).Msg("failed to upload result to S3")
		}
	}

	done := len(resume.CompletedPages(*outPath))
	log.Info().Int("pages", done).Str("output", *outPath).Msg("Markdown conversion complete")
}

func newOpenRouterClient(cfg cfgpkg.Config) (*openrouter.Client, error) {
	return openrouter.New(openrouter.Config{
		APIKey:        cfg.OpenRouter.APIKey,
		BaseURL:       cfg.OpenRouter.BaseURL,
		RequestDelay:  cfg.OpenRouter.RequestDelay,
		MaxRetries:    cfg.OpenRouter.MaxRetries,
		BackoffFactor: cfg.OpenRouter.BackoffFactor,
	})
}

// buildBackend wires the selected backend and resolves the model id for it.
// The remote credential is checked here, before any page is rendered into a
// request.
func buildBackend(cfg cfgpkg.Config, kind backend.Kind, model string) (backend.Generator, string, error) {
	switch kind {
	case backend.Remote:
		client, err := newOpenRouterClient(cfg)
		if err != nil {
			return nil, "", err
		}
		remoteModel := modelmap.Resolve(model)
		if remoteModel != model {
			log.Info().Str("local_model", model).Str("remote_model", remoteModel).Msg("translated model for OpenRouter")
		}
		return &backend.OpenRouter{Client: client, MaxTokens: cfg.OpenRouter.MaxTokens}, remoteModel, nil
	default:
		return &backend.Ollama{Client: ollama.New(cfg.Ollama.Host)}, model, nil
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/docdex/internal/models"
	"github.com/xhad/docdex/pkg/chunker"
	"github.com/xhad/docdex/pkg/classify"
	"github.com/xhad/docdex/pkg/config"
	"github.com/xhad/docdex/pkg/dedupe"
	"github.com/xhad/docdex/pkg/extract"
	"github.com/xhad/docdex/pkg/llm"
	"github.com/xhad/docdex/pkg/pipeline"
	"github.com/xhad/docdex/pkg/retrieval"
	"github.com/xhad/docdex/pkg/store"
)

const usage = `docdex indexes PDF documents into pgvector and answers queries over them.

Usage:
  docdex process --pdf-dir <dir> [--force] [--chunk-size N] [--chunk-overlap N]
  docdex search "<query>" [--top-k N] [--alpha F] [--rag] [--rag-mode MODE]
  docdex merge [--kind person|project] [--threshold F]

Common flags:
  --config <path>   config file (default: config.yaml, then ~/.config/docdex)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	case "merge":
		err = runMerge(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return nil, fmt.Errorf("invalid configuration (%d problems)", len(errs))
	}
	return cfg, nil
}

func runProcess(args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	var (
		configPath   = fs.String("config", "", "Path to config file")
		pdfDir       = fs.String("pdf-dir", "", "Directory of PDF files to index")
		force        = fs.Bool("force", false, "Re-index chunks that are already marked processed")
		chunkSize    = fs.Int("chunk-size", 0, "Chunk size in characters (overrides config)")
		chunkOverlap = fs.Int("chunk-overlap", -1, "Chunk overlap in characters (overrides config)")
		workers      = fs.Int("workers", 0, "Concurrent documents (overrides config)")
	)
	fs.Parse(args)

	if *pdfDir == "" {
		return fmt.Errorf("--pdf-dir is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *chunkSize > 0 {
		cfg.Processor.ChunkSize = *chunkSize
	}
	if *chunkOverlap >= 0 {
		cfg.Processor.ChunkOverlap = *chunkOverlap
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}

	ctx := context.Background()

	vectorStore, err := store.NewWithConfig(ctx, store.StoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	extractor, err := extract.NewWithConfig(extract.ExtractorConfig{
		BaseURL: cfg.Extractor.BaseURL,
		Timeout: time.Duration(cfg.Extractor.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize extractor: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:             cfg.LLM.EmbedModel,
		BaseURL:           cfg.LLM.BaseURL,
		Dimension:         cfg.Database.VectorDim,
		MaxBatch:          cfg.Pipeline.EmbedBatch,
		RequestsPerSecond: cfg.Pipeline.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	p := pipeline.NewWithConfig(pipeline.PipelineConfig{
		Workers: cfg.Pipeline.Workers,
		Force:   *force,
	}, extractor, embedder, vectorStore, chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	}))

	color.Blue("\nIndexing PDFs under %s\n", *pdfDir)
	var bar *progressbar.ProgressBar
	p.OnProgress = func(done, total int) {
		if bar == nil {
			bar = getProgressBar(total, "Processing documents...")
		}
		bar.Set(done)
	}

	start := time.Now()
	summary, err := p.Run(ctx, *pdfDir)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return err
	}

	fmt.Println()
	color.Green("✓ %d documents: %d indexed, %d skipped, %d failed (%d chunks, %s)",
		summary.Documents, summary.Succeeded, summary.Skipped, summary.Failed,
		summary.ChunksIndexed, time.Since(start).Round(time.Second))
	for _, e := range summary.Errors {
		color.Yellow("  warning: %v", e)
	}
	if summary.Failed > 0 && summary.Succeeded == 0 && summary.Skipped == 0 {
		return fmt.Errorf("no document could be indexed")
	}
	return nil
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "Path to config file")
		topK       = fs.Int("top-k", 0, "Number of results (overrides config)")
		alpha      = fs.Float64("alpha", -1, "Dense/sparse blend in [0,1]; 1 is pure dense")
		rag        = fs.Bool("rag", false, "Compose an answer from the results")
		ragMode    = fs.String("rag-mode", "", "Composition mode: summarize, analyze, explain, detail, person")
	)
	fs.Parse(args)

	// the query may come before or after the flags
	query := strings.TrimSpace(fs.Arg(0))
	if fs.NArg() > 1 {
		fs.Parse(fs.Args()[1:])
	}
	if query == "" {
		return fmt.Errorf("a query string is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()

	vectorStore, err := store.NewWithConfig(ctx, store.StoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:             cfg.LLM.EmbedModel,
		BaseURL:           cfg.LLM.BaseURL,
		Dimension:         cfg.Database.VectorDim,
		RequestsPerSecond: cfg.Pipeline.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	classifier := classify.NewWithConfig(classify.ClassifierConfig{
		DefaultTopK:  cfg.Retrieval.TopK,
		DefaultAlpha: cfg.Retrieval.Alpha,
	})
	q := classifier.Classify(query)
	if *topK > 0 {
		q.TopK = *topK
	}
	if *alpha >= 0 {
		q.Alpha = *alpha
	}

	if q.Mode == models.ModePerson {
		color.Cyan("Person query detected: %s", q.Subject)
	}

	engine := retrieval.NewEngine(vectorStore, embedder, retrieval.EngineConfig{
		Threshold: cfg.Retrieval.Threshold,
	})

	spinner := getSpinner("Searching...")
	results, err := engine.Retrieve(ctx, q)
	spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		return err
	}

	if len(results) == 0 {
		color.Yellow("No results found.")
		return nil
	}

	printResults(results)

	if !*rag {
		return nil
	}

	mode := llm.Mode(cfg.Composer.Mode)
	if q.Mode == models.ModePerson {
		mode = llm.ModePerson
	}
	if *ragMode != "" {
		if mode, err = llm.ParseMode(*ragMode); err != nil {
			return err
		}
	}

	composer, err := llm.NewComposerWithConfig(llm.ComposerConfig{
		Model:         cfg.LLM.Model,
		BaseURL:       cfg.LLM.BaseURL,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		ContextBudget: cfg.Composer.ContextBudget,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize composer: %w", err)
	}

	spinner = getSpinner("Composing answer...")
	answer, err := composer.Compose(ctx, q, results, mode)
	spinner.Finish()
	fmt.Print("\r")
	if err != nil {
		if errors.Is(err, llm.ErrNoContext) {
			color.Yellow("No results found.")
			return nil
		}
		return err
	}

	fmt.Println()
	color.Cyan("Answer (%s):", mode)
	fmt.Println(answer.Text)
	if len(answer.References) > 0 {
		fmt.Println()
		color.Blue("References:")
		for _, ref := range answer.References {
			fmt.Printf("  - %s\n", ref)
		}
	}
	return nil
}

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "Path to config file")
		kind       = fs.String("kind", "person", "Record kind to deduplicate: person or project")
		threshold  = fs.Float64("threshold", 0, "Title similarity threshold (overrides config)")
	)
	fs.Parse(args)

	recordKind := models.RecordKind(*kind)
	if recordKind != models.KindPerson && recordKind != models.KindProject {
		return fmt.Errorf("unknown record kind %q", *kind)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *threshold > 0 {
		cfg.Dedupe.Threshold = *threshold
	}

	ctx := context.Background()

	vectorStore, err := store.NewWithConfig(ctx, store.StoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:             cfg.LLM.EmbedModel,
		BaseURL:           cfg.LLM.BaseURL,
		Dimension:         cfg.Database.VectorDim,
		RequestsPerSecond: cfg.Pipeline.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	detector := dedupe.NewDetector(vectorStore, embedder, dedupe.DetectorConfig{
		Threshold: cfg.Dedupe.Threshold,
	})

	records, err := vectorStore.RecordsByKind(ctx, recordKind)
	if err != nil {
		return fmt.Errorf("failed to load %s records: %w", recordKind, err)
	}
	if len(records) == 0 {
		color.Yellow("No %s records to merge.", recordKind)
		return nil
	}

	bar := getProgressBar(len(records), fmt.Sprintf("Merging %s records...", recordKind))
	merged := 0
	for _, rec := range records {
		survivor, err := detector.Resolve(ctx, rec)
		if err != nil {
			return fmt.Errorf("failed to resolve %q: %w", rec.Title, err)
		}
		if survivor.ID != rec.ID {
			merged++
		}
		bar.Add(1)
	}
	bar.Finish()

	fmt.Println()
	color.Green("✓ %d records scanned, %d merged away", len(records), merged)
	return nil
}

func printResults(results []models.SearchResult) {
	fmt.Println()
	for i, res := range results {
		color.Cyan("%d. %s  (score %.3f, dense %.3f, sparse %.3f)",
			i+1, res.FilePath, res.Score, res.Dense, res.Sparse)
		fmt.Printf("   %s\n", snippet(res.Content, 200))
	}
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	cut := strings.LastIndexByte(text[:max], ' ')
	if cut < 0 {
		cut = max
	}
	return text[:cut] + "…"
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

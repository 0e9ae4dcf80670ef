package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"mhassist/internal/assistant"
	"mhassist/internal/config"
	"mhassist/internal/documents"
	"mhassist/internal/domain"
	"mhassist/internal/history"
	"mhassist/internal/llm"
	"mhassist/internal/server"
	"mhassist/internal/service"
	"mhassist/internal/summarizer"
	"mhassist/internal/tui"
)

const usage = `Usage: mhassist [-config=config.yaml] <command> [flags]

Commands:
  status                          show the knowledge base state
  index                           rebuild the index from the documents directory
  search [flags] <query>          search the knowledge base
  add [flags] <text>|-            add text to the index (- reads stdin)
  create-examples [-overwrite]    write the bundled example documents
  list-docs                       list indexable documents
  clean                           delete the saved index
  browse                          interactive search browser
  serve                           run the HTTP API
`

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/mhassist/config.yaml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	setupLogging(cfg.Log)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "status":
		err = runStatus(cfg)
	case "index":
		err = runIndex(cfg)
	case "search":
		err = runSearch(cfg, rest)
	case "add":
		err = runAdd(cfg, rest)
	case "create-examples":
		err = runCreateExamples(cfg, rest)
	case "list-docs":
		err = runListDocs(cfg)
	case "clean":
		err = runClean(cfg)
	case "browse":
		err = runBrowse(cfg)
	case "serve":
		err = runServe(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func newManager(cfg *config.AppConfig) *service.RAGManager {
	m, err := service.New(cfg.RAG)
	if err != nil {
		log.Fatalf("rag init failed: %v", err)
	}
	return m
}

func newSummarizer(cfg config.SummarizerConfig) domain.Summarizer {
	switch cfg.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer()
	default:
		log.Fatalf("unknown summarizer: %s", cfg.Type)
		return nil
	}
}

func printStats(s service.Stats) {
	fmt.Printf("State:               %s\n", s.State)
	fmt.Printf("Chunks indexed:      %d\n", s.DocumentsIndexed)
	fmt.Printf("Sources:             %d\n", s.Sources)
	fmt.Printf("Documents dir:       %s\n", s.DocumentsDir)
	fmt.Printf("Index dir:           %s\n", s.IndexDir)
	fmt.Printf("Chunking:            %d runes, %d overlap\n", s.ChunkSize, s.ChunkOverlap)
	fmt.Printf("Embeddings model:    %s\n", s.EmbeddingsModel)
	fmt.Printf("Index:               %s, %d vectors, dimension %d\n", s.IndexType, s.IndexSize, s.EmbeddingDimension)
	if s.Generation != "" {
		fmt.Printf("Generation:          %s\n", s.Generation)
	}
}

func runStatus(cfg *config.AppConfig) error {
	printStats(newManager(cfg).Stats())
	if !cfg.RAG.Enabled {
		fmt.Println("Retrieval is disabled (rag.enabled=false).")
	}
	return nil
}

func runIndex(cfg *config.AppConfig) error {
	m := newManager(cfg)
	stats, err := m.IndexDocuments()
	if err != nil {
		return err
	}
	printStats(stats)
	digest, err := newSummarizer(cfg.Summarizer).Summarize(strings.Join(m.Texts(), "\n"), cfg.Summarizer.MaxSentences)
	if err != nil {
		return err
	}
	if digest != "" {
		fmt.Printf("\nSummary:\n%s\n", digest)
	}
	return nil
}

func runSearch(cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	category := fs.String("category", service.DefaultCategory, "category label prefixed to the query")
	k := fs.Int("k", cfg.RAG.SearchK, "maximum number of results")
	threshold := fs.Float64("threshold", float64(cfg.RAG.SearchThreshold), "maximum squared L2 distance (exclusive)")
	_ = fs.Parse(args)
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return errors.New("query is required")
	}

	m := newManager(cfg)
	results, err := m.SearchRelevantContent(query, *k, *category, float32(*threshold))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		if m.State() != service.StatePopulated {
			fmt.Printf("The index is %s; run \"mhassist index\" first.\n", m.State())
		} else {
			fmt.Println("No relevant content found.")
		}
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.4f] %s\n%s\n\n", i+1, r.Distance, r.Source(), strings.TrimSpace(r.Content))
	}
	return nil
}

func runAdd(cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "document title")
	category := fs.String("category", service.DefaultCategory, "document category")
	_ = fs.Parse(args)
	text := strings.Join(fs.Args(), " ")
	if text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = string(data)
	}
	stats, err := newManager(cfg).AddDocumentFromText(text, service.DocumentMeta{Title: *title, Category: *category})
	if err != nil {
		return err
	}
	fmt.Printf("Added. The index now holds %d chunks.\n", stats.DocumentsIndexed)
	return nil
}

func runCreateExamples(cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("create-examples", flag.ExitOnError)
	overwrite := fs.Bool("overwrite", false, "replace existing files")
	_ = fs.Parse(args)
	created, skipped, err := documents.CreateExamples(cfg.RAG.DocumentsDir, *overwrite)
	if err != nil {
		return err
	}
	for _, f := range created {
		fmt.Println("created", f)
	}
	for _, f := range skipped {
		fmt.Println("skipped (exists)", f)
	}
	return nil
}

func runListDocs(cfg *config.AppConfig) error {
	files, err := documents.NewLoader(cfg.RAG.SupportedFormats).List(cfg.RAG.DocumentsDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("No documents in %s\n", cfg.RAG.DocumentsDir)
		return nil
	}
	for _, f := range files {
		fmt.Printf("%-40s %8d bytes\n", f.Name, f.Size)
	}
	return nil
}

func runClean(cfg *config.AppConfig) error {
	if err := newManager(cfg).Clear(); err != nil {
		return err
	}
	fmt.Println("Index removed from", cfg.RAG.IndexDir)
	return nil
}

func runBrowse(cfg *config.AppConfig) error {
	m := newManager(cfg)
	summary, err := newSummarizer(cfg.Summarizer).Summarize(strings.Join(m.Texts(), "\n"), 1)
	if err != nil {
		return err
	}
	if m.State() != service.StatePopulated {
		summary = fmt.Sprintf("The index is %s.", m.State())
	}
	a := assistant.New(m, nil, history.NewMemoryStore(), assistant.Options{RAGEnabled: true})
	_, err = tea.NewProgram(tui.New(a, summary), tea.WithAltScreen()).Run()
	return err
}

func runServe(cfg *config.AppConfig) error {
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.Server.History)
	if err != nil {
		return err
	}
	defer store.Close()

	a := assistant.New(newManager(cfg), client, store, assistant.Options{
		RAGEnabled: cfg.RAG.Enabled,
		MaxHistory: cfg.Server.History.MaxMessages,
	})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.WithFields(log.Fields{"model": client.Model(), "rag": cfg.RAG.Enabled}).Info("starting assistant")
	return server.New(a, cfg.Server).ListenAndServe(ctx)
}

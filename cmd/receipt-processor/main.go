package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-processor/internal/extraction"
	"github.com/zombor/receipt-processor/internal/receipt"
	"github.com/zombor/receipt-processor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A .env file is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	fs := ff.NewFlagSet("receipt-processor")
	var (
		port              = fs.IntLong("port", 8080, "HTTP server port")
		dbDriver          = fs.StringLong("db-driver", "bolt", "Database driver: 'bolt' or 'sqlite'")
		dbPath            = fs.StringLong("db", "receipts.db", "Database file path")
		uploadDir         = fs.StringLong("upload-dir", "./uploads", "Directory uploaded PDFs are stored in")
		backendType       = fs.StringLong("backend", "together", "Model backend: 'together', 'openai', 'gemini' or 'ollama'")
		apiKey            = fs.StringLong("api-key", "", "API key for the together/openai backend (or set TOGETHER_API_KEY)")
		apiURL            = fs.StringLong("api-url", "", "Base URL of an OpenAI-compatible API (defaults per backend)")
		model             = fs.StringLong("model", "", "Model name (defaults per backend)")
		geminiKey         = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		ollamaURL         = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		backendTimeout    = fs.DurationLong("backend-timeout", 60*time.Second, "Timeout for a single model call")
		maxFileSize       = fs.IntLong("max-file-size", receipt.DefaultMaxFileSize, "Largest accepted PDF in bytes")
		maxPages          = fs.IntLong("max-pages", receipt.DefaultMaxPages, "Largest accepted page count")
		tesseract         = fs.StringLong("tesseract", "tesseract", "Tesseract binary")
		ocrLang           = fs.StringLong("ocr-lang", "eng", "Tesseract language")
		tessdata          = fs.StringLong("tessdata-dir", "", "Tesseract tessdata directory (optional)")
		visionConcurrency = fs.IntLong("vision-concurrency", 4, "Pages transcribed in parallel by the vision tier")
		tierPolicy        = fs.StringLong("tier", "request", "Extraction tier: 'request' (from is_premium_user), 'standard' or 'high'")
		authUser          = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass          = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion       = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPTS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	tiers, err := newTierPolicy(*tierPolicy)
	if err != nil {
		slog.Error("Invalid tier policy", "error", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...", "driver", *dbDriver, "path", *dbPath)
	var db receipt.DB
	switch *dbDriver {
	case "bolt":
		db, err = receipt.NewBoltDB(*dbPath)
	case "sqlite":
		db, err = receipt.NewSQLiteDB(*dbPath)
	default:
		err = fmt.Errorf("unknown driver %q, want bolt or sqlite", *dbDriver)
	}
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize model backend
	backend, err := newBackend(*backendType, *apiKey, *apiURL, *model, *geminiKey, *ollamaURL, *backendTimeout)
	if err != nil {
		slog.Error("Failed to initialize backend", "backend", *backendType, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	// Initialize storage
	slog.Info("Initializing storage...", "path", *uploadDir)
	store, err := receipt.NewLocalStorage(*uploadDir)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	ocr := extraction.NewOCRStrategy(extraction.OCRConfig{
		Tesseract:   *tesseract,
		Language:    *ocrLang,
		TessdataDir: *tessdata,
	}, extraction.ExecRunner{})
	cascade := extraction.NewCascade(
		[]extraction.Strategy{extraction.NewConventionalStrategy(), ocr},
		[]extraction.Strategy{extraction.NewVisionStrategy(backend, *visionConcurrency)},
	)

	// Initialize service
	receiptService := receipt.NewService(db, store, receipt.Pipeline{
		Validator:   receipt.NewPDFValidator(),
		Open:        extraction.OpenPDF,
		Text:        cascade,
		Fields:      scanning.NewExtractor(backend),
		Tiers:       tiers,
		MaxFileSize: int64(*maxFileSize),
		MaxPages:    *maxPages,
	})

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Serve until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shut down")
}

func newBackend(kind, apiKey, apiURL, model, geminiKey, ollamaURL string, timeout time.Duration) (scanning.Backend, error) {
	switch kind {
	case "together":
		if apiKey == "" {
			apiKey = os.Getenv("TOGETHER_API_KEY")
		}
		if apiURL == "" {
			apiURL = scanning.TogetherBaseURL
		}
		slog.Info("Initializing Together AI backend...", "model", model)
		return scanning.NewChatCompletions(apiURL, apiKey, model, timeout)
	case "openai":
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiURL == "" {
			apiURL = scanning.OpenAIBaseURL
		}
		if model == "" {
			model = scanning.OpenAIDefaultModel
		}
		slog.Info("Initializing OpenAI backend...", "url", apiURL, "model", model)
		return scanning.NewChatCompletions(apiURL, apiKey, model, timeout)
	case "gemini":
		// Get Gemini API key from flag or environment
		if geminiKey == "" {
			geminiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini backend...", "model", model)
		return scanning.NewGemini(geminiKey, model, timeout)
	case "ollama":
		slog.Info("Initializing Ollama backend...", "url", ollamaURL, "model", model)
		return scanning.NewOllama(ollamaURL, model, timeout)
	default:
		return nil, fmt.Errorf("unknown backend %q, want together, openai, gemini or ollama", kind)
	}
}

func newTierPolicy(name string) (receipt.TierPolicy, error) {
	if name == "request" {
		return receipt.RequestTierPolicy{}, nil
	}
	tier, err := extraction.ParseTier(name)
	if err != nil {
		return nil, err
	}
	return receipt.FixedTierPolicy{Fixed: tier}, nil
}

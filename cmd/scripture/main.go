package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	mcpadapter "github.com/kirillkom/scripture-rag/internal/adapters/mcp"
	"github.com/kirillkom/scripture-rag/internal/bootstrap"
	"github.com/kirillkom/scripture-rag/internal/config"
	"github.com/kirillkom/scripture-rag/internal/core/domain"
	"github.com/kirillkom/scripture-rag/internal/core/retrieval"
	"github.com/kirillkom/scripture-rag/internal/observability/logging"
)

const version = "0.3.0"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("command_failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "scripture",
		Usage:   "Grounded question answering over a Portuguese Bible corpus",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (json, pretty)",
				Value: "pretty",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Override PASSAGE_STORE (qdrant, postgres, badger)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Parse a TXT corpus and index every verse",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the corpus file",
						Required: true,
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Show analysis and the literal, semantic and fused candidate lists",
				ArgsUsage: "<question>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "AUTO or LITERAL_ONLY; derived from the question when empty",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the raw retrieval as JSON",
					},
				},
			},
			{
				Name:      "answer",
				Usage:     "Answer a question from retrieved passages",
				ArgsUsage: "<question>",
				Action:    answerCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve retrieve_passages and ask_bible over MCP stdio",
				Action: mcpCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level := strings.ToLower(c.String("log-level"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", level)
	}
	format := strings.ToLower(c.String("log-format"))
	if format != "json" && format != "pretty" {
		return fmt.Errorf("invalid log format %q: must be json or pretty", format)
	}

	// CLI output goes to stdout, so logs always go to stderr.
	slog.SetDefault(logging.NewStderrLogger("scripture", level, format))
	return nil
}

func loadCore(c *cli.Context) (*bootstrap.Core, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if store := strings.TrimSpace(c.String("store")); store != "" {
		cfg.PassageStore = strings.ToLower(store)
	}
	return bootstrap.NewCore(c.Context, cfg, slog.Default(), bootstrap.Observers{})
}

func questionArg(c *cli.Context) (string, error) {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return "", cli.Exit("a question is required", 2)
	}
	return question, nil
}

func ingestCommand(c *cli.Context) error {
	path := c.String("file")
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer file.Close()

	core, err := loadCore(c)
	if err != nil {
		return err
	}
	defer core.Close()

	started := time.Now()
	slog.Info("ingest_started", "file", path, "store", core.Config.PassageStore)
	count, err := core.DirectIngestor().Ingest(c.Context, file, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("ingest %s: %w", path, err)
	}
	slog.Info("ingest_finished", "passages", count, "duration", time.Since(started).String())
	fmt.Fprintf(c.App.Writer, "indexed %d passages from %s\n", count, path)
	return nil
}

func queryCommand(c *cli.Context) error {
	question, err := questionArg(c)
	if err != nil {
		return err
	}
	core, err := loadCore(c)
	if err != nil {
		return err
	}
	defer core.Close()

	mode := retrieval.ModeFor(core.Retriever.Analyze(question))
	if raw := strings.ToUpper(strings.TrimSpace(c.String("mode"))); raw != "" {
		parsed, ok := domain.ParseRetrievalMode(raw)
		if !ok {
			return cli.Exit("mode must be AUTO or LITERAL_ONLY", 2)
		}
		mode = parsed
	}

	result, err := core.Retriever.Retrieve(c.Context, question, mode)
	if err != nil {
		return err
	}
	decision := retrieval.Guard(result.Query, result.Candidates)
	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"retrieval": result, "guard": decision})
	}
	printRetrieval(c.App.Writer, result, decision)
	return nil
}

func answerCommand(c *cli.Context) error {
	question, err := questionArg(c)
	if err != nil {
		return err
	}
	core, err := loadCore(c)
	if err != nil {
		return err
	}
	defer core.Close()

	answer, err := core.Answerer.Answer(c.Context, question)
	if err != nil {
		return err
	}
	printAnswer(c.App.Writer, answer)
	return nil
}

func mcpCommand(c *cli.Context) error {
	core, err := loadCore(c)
	if err != nil {
		return err
	}
	defer core.Close()

	slog.Info("mcp_serving", "store", core.Config.PassageStore)
	return mcpadapter.NewServer(version, core.Retriever, core.Answerer).Serve(c.Context, os.Stdin, os.Stdout)
}

var (
	heading = color.New(color.FgCyan, color.Bold)
	refText = color.New(color.FgYellow)
	blocked = color.New(color.FgRed)
)

func printRetrieval(w io.Writer, r *domain.Retrieval, decision domain.GuardDecision) {
	q := r.Query
	heading.Fprintln(w, "Query")
	fmt.Fprintf(w, "  mode: %s\n", r.Mode)
	fmt.Fprintf(w, "  keywords: %s\n", strings.Join(q.Keywords, ", "))
	if q.BookFilter != "" {
		fmt.Fprintf(w, "  book: %s\n", q.BookFilter)
	}
	if q.TestamentPreference != "" {
		fmt.Fprintf(w, "  testament: %s\n", q.TestamentPreference)
	}
	fmt.Fprintf(w, "  biographical: %t\n", q.IsBiographical)

	printCandidates(w, "Literal", r.Literal)
	printCandidates(w, "Semantic", r.Semantic)
	printCandidates(w, "Fused", r.Candidates)

	if decision.Blocked() {
		blocked.Fprintf(w, "\nguard: BLOCK (%s)\n", decision.Reason)
		return
	}
	fmt.Fprintln(w, "\nguard: PROCEED")
}

func printCandidates(w io.Writer, title string, candidates []domain.Candidate) {
	heading.Fprintf(w, "\n%s (%d)\n", title, len(candidates))
	for i, c := range candidates {
		score := fmt.Sprintf("hits=%d", c.LiteralScore)
		if c.Origin == domain.OriginSemantic {
			score = fmt.Sprintf("dist=%.4f", c.SemanticDistance)
		}
		fmt.Fprintf(w, "  %2d. ", i+1)
		refText.Fprintf(w, "%s", c.Passage.Reference())
		fmt.Fprintf(w, " [%s %s] %s\n", c.Origin, score, c.Passage.Text)
	}
}

func printAnswer(w io.Writer, answer *domain.Answer) {
	if answer.Blocked {
		blocked.Fprintln(w, answer.Text)
		return
	}
	fmt.Fprintln(w, answer.Text)
	if len(answer.Sources) == 0 {
		return
	}
	heading.Fprintln(w, "\nFontes")
	for _, p := range answer.Sources {
		fmt.Fprint(w, "  - ")
		refText.Fprintln(w, p.Reference())
	}
}

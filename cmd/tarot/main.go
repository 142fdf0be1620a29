// Command tarot is the CLI for the tarot reading engine.
//
// Usage:
//
//	tarot reading --config config.yaml --question "What should I focus on?" --spread one_card
//	tarot validate --config config.yaml
//	tarot version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/alecthomas/kong"

	"github.com/wizmain/tarot-reading-engine/internal/config"
	"github.com/wizmain/tarot-reading-engine/internal/domain"
	"github.com/wizmain/tarot-reading-engine/internal/engine"
	"github.com/wizmain/tarot-reading-engine/internal/logger"
)

// CLI defines the command-line interface. There is no "serve" subcommand:
// the HTTP surface that would host this engine for other callers is a
// separate collaborator's concern, not this module's.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Reading  ReadingCmd  `cmd:"" help:"Generate a single reading and print it."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path" default:"config.yaml"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose)." default:"simple"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("tarot version %s\n", version)
	return nil
}

// ValidateCmd loads and validates a config file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("config %q is valid\n", cli.Config)
	return nil
}

// ReadingCmd draws cards and generates a single reading, printing either SSE
// frames (for one/three-card spreads, which stream.Generator wraps) or the
// final JSON result (for Celtic Cross, whose parallel engine has no
// streaming path).
type ReadingCmd struct {
	UserID     string `help:"User id to attribute the reading to." default:"cli"`
	Question   string `help:"The question to ask the cards." required:""`
	SpreadType string `name:"spread" help:"one_card, three_card_past_present_future, three_card_situation_action_outcome, celtic_cross." default:"one_card"`
	Category   string `help:"Optional reading category (love, career, general...)."`
	Language   string `help:"Output language." default:"en"`
}

func (c *ReadingCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	log := logger.GetLogger()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	pl, err := buildPipeline(ctx, cfg, false, log)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}
	defer pl.Close(context.Background())

	spreadType := domain.SpreadType(c.SpreadType)

	if spreadType == domain.SpreadCelticCross {
		return c.runCelticCross(ctx, pl, spreadType)
	}
	return c.runStreamed(ctx, pl, spreadType)
}

func (c *ReadingCmd) runStreamed(ctx context.Context, pl *pipeline, spreadType domain.SpreadType) error {
	numCards := numCardsFor(spreadType)
	readingID := fmt.Sprintf("cli-%d", time.Now().UnixNano())
	frames := pl.generator.Generate(ctx, readingID, c.UserID, c.Question, spreadType, c.Category, c.Language, numCards)
	for frame := range frames {
		fmt.Print(frame)
	}
	pl.generator.Wait()
	return nil
}

// runCelticCross draws ten cards and runs the parallel Celtic Cross engine
// directly, since stream.Generator only wraps the single-call engine. The
// result and any background persistence are handled inline rather than
// through the streaming layer.
func (c *ReadingCmd) runCelticCross(ctx context.Context, pl *pipeline, spreadType domain.SpreadType) error {
	cards := engine.DrawCards(pl.kb, numCardsFor(spreadType))
	result, err := pl.celtic.Generate(ctx, cards, c.Question, c.Category, c.Language)
	if err != nil {
		return fmt.Errorf("reading: celtic cross: %w", err)
	}

	out, err := json.MarshalIndent(result.Reading, "", "  ")
	if err != nil {
		return fmt.Errorf("reading: encode result: %w", err)
	}
	fmt.Println(string(out))

	if pl.persist != nil {
		readingID := fmt.Sprintf("cli-%d", time.Now().UnixNano())
		if _, err := pl.persist.CreateReading(ctx, persistedReadingFromResult(readingID, c.UserID, c.Question, c.Category, spreadType, cards, result)); err != nil {
			pl.logger.Warn("reading: failed to persist celtic cross reading", "error", err)
		}
	}
	return nil
}

func persistedReadingFromResult(readingID, userID, question, category string, spreadType domain.SpreadType, cards []domain.DrawnCard, result engine.Result) domain.PersistedReading {
	persistedCards := make([]domain.PersistedCard, len(result.Reading.Cards))
	for i, ci := range result.Reading.Cards {
		var orientation domain.Orientation
		var snapshot domain.Card
		if i < len(cards) {
			orientation = cards[i].Orientation
			snapshot = cards[i].Card
		}
		persistedCards[i] = domain.PersistedCard{
			CardID:         ci.CardID,
			Position:       ci.Position,
			Orientation:    orientation,
			Interpretation: ci.Interpretation,
			KeyMessage:     ci.KeyMessage,
			CardSnapshot:   snapshot,
		}
	}
	return domain.PersistedReading{
		ID:                readingID,
		UserID:            userID,
		SpreadType:        spreadType,
		Question:          question,
		Category:          category,
		Cards:             persistedCards,
		CardRelationships: result.Reading.CardRelationships,
		OverallReading:    result.Reading.OverallReading,
		Advice:            result.Reading.Advice,
		Summary:           result.Reading.Summary,
	}
}

func numCardsFor(spreadType domain.SpreadType) int {
	switch spreadType {
	case domain.SpreadOneCard:
		return 1
	case domain.SpreadThreeCardPastPresentFuture, domain.SpreadThreeCardSituationActionOut:
		return 3
	case domain.SpreadCelticCross:
		return 10
	default:
		return 1
	}
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("tarot"),
		kong.Description("Tarot reading engine CLI"),
		kong.UsageOnError(),
	)

	level, parseErr := logger.ParseLevel(cli.LogLevel)
	if parseErr != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", parseErr)
		os.Exit(1)
	}

	output := os.Stderr
	var cleanup func()
	if cli.LogFile != "" {
		file, cleanupFn, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		output = file
		cleanup = cleanupFn
	}
	logger.Init(level, output, cli.LogFormat)
	if cleanup != nil {
		defer cleanup()
	}

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}

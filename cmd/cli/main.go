package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/card-ledger/internal/config"
	"github.com/dvloznov/card-ledger/internal/docstore"
	"github.com/dvloznov/card-ledger/internal/domain"
	"github.com/dvloznov/card-ledger/internal/ledger"
	"github.com/dvloznov/card-ledger/internal/logger"
	"github.com/dvloznov/card-ledger/internal/reconcile"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		runAdd(log)
	case "list":
		runList(log)
	case "reconcile":
		runReconcile(log)
	case "reports":
		runReports(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Card Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  add        Record a transaction in the ledger")
	fmt.Println("  list       List transactions for a month or year")
	fmt.Println("  reconcile  Run statement reconciliation for a card")
	fmt.Println("  reports    List or show reconciliation reports")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func openRepository(log zerolog.Logger, dataDir string) *ledger.Repository {
	docs, err := docstore.NewFileStore(dataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger storage")
	}
	return ledger.NewRepository(ledger.NewStore(docs))
}

func runAdd(log zerolog.Logger) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	dataDir := fs.String("data-dir", "data/ledger", "ledger partition directory")
	date := fs.String("date", "", "transaction date (YYYY-MM-DD)")
	amount := fs.Float64("amount", 0, "signed amount (income positive, expense negative)")
	description := fs.String("description", "", "transaction description")
	institution := fs.String("institution", "", "institution id")
	account := fs.String("account", "", "account id")
	categoryID := fs.String("category-id", "", "category id snapshot")
	categoryName := fs.String("category-name", "", "category name snapshot")
	categoryType := fs.String("category-type", string(domain.CategoryExpense), "category type (INCOME, EXPENSE, TRANSFER, REPAYMENT)")
	fs.Parse(os.Args[2:])

	if *date == "" {
		log.Fatal().Msg("-date is required")
	}
	parsed, err := time.Parse("2006-01-02", *date)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -date")
	}

	now := time.Now().UTC()
	tx := domain.Transaction{
		ID:          uuid.New().String(),
		Date:        parsed.UTC(),
		Amount:      *amount,
		Description: *description,
		Category: domain.Category{
			ID:   *categoryID,
			Name: *categoryName,
			Type: domain.CategoryType(*categoryType),
		},
		InstitutionID: *institution,
		AccountID:     *account,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	repo := openRepository(log, *dataDir)
	if err := repo.Save(context.Background(), tx); err != nil {
		log.Fatal().Err(err).Msg("Failed to save transaction")
	}

	log.Info().
		Str("transaction_id", tx.ID).
		Str("partition", ledger.KeyForDate(tx.Date).String()).
		Msg("Transaction recorded")
}

func runList(log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir := fs.String("data-dir", "data/ledger", "ledger partition directory")
	year := fs.Int("year", 0, "year to list")
	month := fs.Int("month", 0, "month to list (1-12, requires -year)")
	fs.Parse(os.Args[2:])

	if *year == 0 {
		log.Fatal().Msg("-year is required")
	}

	repo := openRepository(log, *dataDir)
	ctx := context.Background()

	var (
		txs []domain.Transaction
		err error
	)
	if *month != 0 {
		txs, err = repo.FindByMonth(ctx, *year, time.Month(*month))
	} else {
		txs, err = repo.FindByYear(ctx, *year)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	printJSON(log, txs)
}

func runReconcile(log zerolog.Logger) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	dataDir := fs.String("data-dir", "data/ledger", "ledger partition directory")
	reportDir := fs.String("reports-dir", "data/reports", "reconciliation report directory")
	cardsFile := fs.String("cards-file", "cards.json", "card configuration JSON file")
	cardID := fs.String("card", "", "card id to reconcile")
	billingMonth := fs.String("month", "", "billing month (YYYY-MM)")
	fs.Parse(os.Args[2:])

	if *cardID == "" || *billingMonth == "" {
		log.Fatal().Msg("-card and -month are required")
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	repo := openRepository(log, *dataDir)

	reportDocs, err := docstore.NewFileStore(*reportDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open report storage")
	}
	reports := reconcile.NewDocumentReportStore(reportDocs)

	cards, err := reconcile.LoadCardConfigs(*cardsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load card configuration")
	}

	engine := reconcile.NewEngine(repo, reports, reconcile.NewConfigCycleResolver(cards), cfg.Tolerance, log)

	report, err := engine.Reconcile(context.Background(), *cardID, *billingMonth)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}

	printJSON(log, report)
}

func runReports(log zerolog.Logger) {
	fs := flag.NewFlagSet("reports", flag.ExitOnError)
	reportDir := fs.String("reports-dir", "data/reports", "reconciliation report directory")
	cardID := fs.String("card", "", "filter by card id")
	reportID := fs.String("id", "", "show one report in full")
	fs.Parse(os.Args[2:])

	reportDocs, err := docstore.NewFileStore(*reportDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open report storage")
	}
	reports := reconcile.NewDocumentReportStore(reportDocs)
	ctx := context.Background()

	if *reportID != "" {
		report, err := reports.Get(ctx, *reportID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to fetch report")
		}
		printJSON(log, report)
		return
	}

	summaries, err := reports.List(ctx, *cardID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list reports")
	}
	printJSON(log, summaries)
}

func printJSON(log zerolog.Logger, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode output")
	}
	fmt.Println(string(data))
}

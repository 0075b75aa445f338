package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/gorilla/mux"

	"github.com/dvloznov/card-ledger/internal/api/handlers"
	"github.com/dvloznov/card-ledger/internal/api/middleware"
	"github.com/dvloznov/card-ledger/internal/config"
	"github.com/dvloznov/card-ledger/internal/docstore"
	"github.com/dvloznov/card-ledger/internal/ledger"
	"github.com/dvloznov/card-ledger/internal/logger"
	"github.com/dvloznov/card-ledger/internal/reconcile"
)

func main() {
	log := logger.New()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Flags override env for local runs
	var (
		port      = flag.String("port", cfg.Port, "HTTP server port")
		dataDir   = flag.String("data-dir", cfg.DataDir, "ledger partition directory")
		reportDir = flag.String("reports-dir", cfg.ReportsDir, "reconciliation report directory")
		cardsFile = flag.String("cards-file", cfg.CardsFile, "card configuration JSON file")
		bucket    = flag.String("bucket", cfg.GCSBucket, "GCS bucket for partitions instead of the local filesystem")
	)
	flag.Parse()

	ctx := context.Background()

	ledgerDocs, reportDocs, cleanup, err := buildStores(ctx, *dataDir, *reportDir, *bucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer cleanup()

	repo := ledger.NewRepository(ledger.NewStore(ledgerDocs))
	reports := reconcile.NewDocumentReportStore(reportDocs)

	cards, err := reconcile.LoadCardConfigs(*cardsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load card configuration")
	}
	resolver := reconcile.NewConfigCycleResolver(cards)
	engine := reconcile.NewEngine(repo, reports, resolver, cfg.Tolerance, log)

	transactionsHandler := handlers.NewTransactionsHandler(repo, log)
	reconciliationsHandler := handlers.NewReconciliationsHandler(engine, reports, log)

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/transactions", transactionsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/transactions", transactionsHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/transactions/batch", transactionsHandler.CreateBatch).Methods(http.MethodPost)
	api.HandleFunc("/transactions/unreconciled-transfers", transactionsHandler.UnreconciledTransfers).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", transactionsHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", transactionsHandler.Update).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", transactionsHandler.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/reconciliations", reconciliationsHandler.Run).Methods(http.MethodPost)
	api.HandleFunc("/reconciliations", reconciliationsHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/reconciliations/{id}", reconciliationsHandler.Get).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	handler := middleware.Logger(log)(middleware.Recovery(log)(middleware.CORS(r)))

	srv := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("API server exited")
}

// buildStores picks the partition backend: a GCS bucket when configured,
// the local filesystem otherwise.
func buildStores(ctx context.Context, dataDir, reportDir, bucket string) (docstore.DocumentStore, docstore.DocumentStore, func(), error) {
	if bucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		ledgerDocs := docstore.NewGCSStore(client, bucket, "ledger")
		reportDocs := docstore.NewGCSStore(client, bucket, "reports")
		return ledgerDocs, reportDocs, func() { _ = client.Close() }, nil
	}

	ledgerDocs, err := docstore.NewFileStore(dataDir)
	if err != nil {
		return nil, nil, nil, err
	}
	reportDocs, err := docstore.NewFileStore(reportDir)
	if err != nil {
		return nil, nil, nil, err
	}
	return ledgerDocs, reportDocs, func() {}, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dvloznov/card-ledger/internal/config"
	"github.com/dvloznov/card-ledger/internal/docstore"
	"github.com/dvloznov/card-ledger/internal/jobs"
	"github.com/dvloznov/card-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/card-ledger/internal/ledger"
	"github.com/dvloznov/card-ledger/internal/logger"
	"github.com/dvloznov/card-ledger/internal/reconcile"
)

// The scheduler is the external collaborator that invokes reconciliation
// out-of-band: on each cron tick it publishes one reconcile job per
// configured card for the previous billing month, and workers run the engine.
func main() {
	log := logger.New()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ledgerDocs, err := docstore.NewFileStore(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger storage")
	}
	reportDocs, err := docstore.NewFileStore(cfg.ReportsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open report storage")
	}

	repo := ledger.NewRepository(ledger.NewStore(ledgerDocs))
	reports := reconcile.NewDocumentReportStore(reportDocs)

	cards, err := reconcile.LoadCardConfigs(cfg.CardsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load card configuration")
	}
	engine := reconcile.NewEngine(repo, reports, reconcile.NewConfigCycleResolver(cards), cfg.Tolerance, log)

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(100, 2, jobStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job jobs.Job) error {
		reconcileJob, ok := job.(*jobs.ReconcileJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", reconcileJob.JobID).
			Str("card_id", reconcileJob.CardID).
			Str("billing_month", reconcileJob.BillingMonth).
			Msg("Processing reconcile job")

		report, err := engine.Reconcile(ctx, reconcileJob.CardID, reconcileJob.BillingMonth)
		if err != nil {
			return err
		}
		reconcileJob.ReconciliationID = report.ReconciliationID
		return nil
	}

	if err := queue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.CronSpec, func() {
		// Reconcile the statement that closed last month.
		billingMonth := time.Now().UTC().AddDate(0, -1, 0).Format("2006-01")
		for _, card := range cards {
			job := &jobs.ReconcileJob{CardID: card.CardID, BillingMonth: billingMonth}
			if err := queue.PublishReconcile(ctx, job); err != nil {
				log.Error().Err(err).Str("card_id", card.CardID).Msg("Failed to publish reconcile job")
			}
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("cron", cfg.CronSpec).Msg("Invalid cron spec")
	}
	c.Start()

	log.Info().Str("cron", cfg.CronSpec).Int("cards", len(cards)).Msg("Scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down scheduler...")

	cronCtx := c.Stop()
	<-cronCtx.Done()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Scheduler exited")
}

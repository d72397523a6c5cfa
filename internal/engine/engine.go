// Package engine orchestrates the risk pipeline: periodic polling of
// pending transactions, scoring, routing, model retraining and portfolio
// aggregation.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wekeza/riskengine/internal/anomaly"
	"github.com/wekeza/riskengine/internal/domain"
	"github.com/wekeza/riskengine/internal/portfolio"
	"github.com/wekeza/riskengine/internal/router"
	"github.com/wekeza/riskengine/internal/rules"
	"github.com/wekeza/riskengine/internal/scoring"
)

// Engine owns the scoring collaborators and the schedule that drives them.
// Transactions within a batch are processed strictly sequentially.
type Engine struct {
	repo       domain.Repository
	scorer     *rules.Scorer
	model      *anomaly.Model
	compositor *scoring.Compositor
	advisory   domain.AdvisoryClient
	router     *router.Router
	aggregator *portfolio.Aggregator
	bus        domain.EventBus
	cfg        domain.EngineConfig
}

// New wires an engine from its collaborators.
func New(
	repo domain.Repository,
	scorer *rules.Scorer,
	model *anomaly.Model,
	compositor *scoring.Compositor,
	advisory domain.AdvisoryClient,
	caseRouter *router.Router,
	aggregator *portfolio.Aggregator,
	bus domain.EventBus,
	cfg domain.EngineConfig,
) *Engine {
	return &Engine{
		repo:       repo,
		scorer:     scorer,
		model:      model,
		compositor: compositor,
		advisory:   advisory,
		router:     caseRouter,
		aggregator: aggregator,
		bus:        bus,
		cfg:        cfg,
	}
}

// Run trains the model on available history, registers the periodic tasks
// and blocks until ctx is cancelled. Task failures abort their cycle only;
// the schedule continues.
func (e *Engine) Run(ctx context.Context) {
	e.Retrain(ctx)

	sched := NewScheduler()
	sched.Register("process-transactions", e.cfg.PollInterval, func(ctx context.Context) {
		if err := e.ProcessBatch(ctx); err != nil {
			slog.Error("transaction processing cycle failed", "error", err)
		}
	})
	sched.Register("retrain-model", e.cfg.RetrainInterval, e.Retrain)
	sched.Register("portfolio-aggregation", e.cfg.AggregateInterval, func(ctx context.Context) {
		if _, err := e.aggregator.Aggregate(ctx); err != nil {
			slog.Error("portfolio aggregation failed", "error", err)
		}
	})

	slog.Info("engine running",
		"poll_interval", e.cfg.PollInterval,
		"batch_size", e.cfg.BatchSize,
		"retrain_interval", e.cfg.RetrainInterval,
		"aggregate_interval", e.cfg.AggregateInterval,
	)
	sched.Run(ctx)
}

// RunOnce executes a single processing cycle plus a portfolio update.
// Used by the --once mode and the run-cycle API endpoint.
func (e *Engine) RunOnce(ctx context.Context) error {
	if err := e.ProcessBatch(ctx); err != nil {
		return err
	}
	if _, err := e.aggregator.Aggregate(ctx); err != nil {
		return err
	}
	return nil
}

// ProcessBatch fetches one batch of pending transactions and runs each
// through the pipeline. Per-transaction failures are contained: the loop
// continues with the next transaction. A fetch failure is fatal to the
// cycle. Cancellation is honored between transactions, never mid-way
// through one, so a case is never left behind without its status flip.
func (e *Engine) ProcessBatch(ctx context.Context) error {
	pending, err := e.repo.FetchPendingTransactions(ctx, e.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch pending transactions: %w", err)
	}
	if len(pending) == 0 {
		slog.Debug("no pending transactions to process")
		return nil
	}

	slog.Info("processing transaction batch", "count", len(pending))

	for _, tx := range pending {
		if ctx.Err() != nil {
			slog.Info("batch interrupted by shutdown", "remaining", len(pending))
			return nil
		}
		if err := e.processOne(ctx, tx); err != nil {
			slog.Error("transaction processing failed",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}
	return nil
}

// processOne scores and routes a single transaction.
func (e *Engine) processOne(ctx context.Context, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		// DataError: abort this transaction only; it stays PENDING.
		return err
	}

	ruleScore, ruleReasons := e.scorer.Score(tx)

	anomalyContribution, anomalyReason, err := e.model.Score(tx)
	if err != nil {
		slog.Warn("anomaly scoring failed, contribution treated as zero",
			"tx_id", tx.ID,
			"error", err,
		)
	}

	var signal *domain.AdvisorySignal
	if e.advisory != nil {
		signal, err = e.advisory.Submit(ctx, tx)
		if err != nil {
			// Transient external failure: absent signal, continue.
			slog.Warn("advisory submission failed",
				"tx_id", tx.ID,
				"error", err,
			)
			signal = nil
		}
	}

	assessment := e.compositor.Compose(scoring.Input{
		TransactionID:       tx.ID,
		RuleScore:           ruleScore,
		RuleReasons:         ruleReasons,
		AnomalyContribution: anomalyContribution,
		AnomalyReason:       anomalyReason,
		Advisory:            signal,
	})

	slog.Info("transaction scored",
		"tx_id", tx.ID,
		"tier", assessment.Tier,
		"score", assessment.Score,
	)

	if err := e.repo.SaveAssessment(ctx, assessment); err != nil {
		slog.Warn("failed to persist assessment",
			"tx_id", tx.ID,
			"error", err,
		)
	}

	if _, err := e.router.Route(ctx, tx, assessment); err != nil {
		return err
	}

	e.publishScored(ctx, assessment)
	return nil
}

// Retrain fits a fresh model snapshot on recent history. Short history is
// not an error: the engine keeps scoring with a zero anomaly contribution.
func (e *Engine) Retrain(ctx context.Context) {
	since := time.Now().Add(-e.cfg.TrainingWindow)
	history, err := e.repo.GetTransactionHistory(ctx, since, e.cfg.TrainingLimit)
	if err != nil {
		slog.Error("failed to fetch training history", "error", err)
		return
	}
	if !e.model.Train(history) {
		slog.Warn("model retraining skipped", "history_size", len(history))
	}
}

func (e *Engine) publishScored(ctx context.Context, assessment *domain.RiskAssessment) {
	if e.bus == nil {
		return
	}
	payload, _ := json.Marshal(assessment)
	if err := e.bus.Publish(ctx, domain.TopicTransactionScored, payload); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("failed to publish scored event",
			"tx_id", assessment.TransactionID,
			"error", err,
		)
	}
}

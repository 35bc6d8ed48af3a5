// Package catalog maintains the loan product catalog. Products come from
// pluggable sources and are upserted by (product_name, lender_name), so a
// refresh updates published terms without duplicating entries.
package catalog

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Source provides loan products for the catalog
type Source interface {
	Name() string
	Products(ctx context.Context) ([]models.UpsertLoanProductRequest, error)
}

type productUpserter interface {
	Upsert(ctx context.Context, req *models.UpsertLoanProductRequest) (*models.LoanProduct, error)
}

type runLog interface {
	Append(ctx context.Context, entry *models.ProcessingLog) (*models.ProcessingLog, error)
	FinishWithCount(ctx context.Context, id string, status models.ProcessStatus, details string, records int) error
}

// RefreshResult summarizes one catalog refresh
type RefreshResult struct {
	Discovered int `json:"products_discovered"`
	Saved      int `json:"products_saved"`
}

// Refresher loads products from all sources and persists them
type Refresher struct {
	sources  []Source
	products productUpserter
	logs     runLog
	logger   ectologger.Logger
}

// NewRefresher creates a catalog refresher. With no sources given, the
// curated set is used.
func NewRefresher(products productUpserter, logs runLog, logger ectologger.Logger, sources ...Source) *Refresher {
	if len(sources) == 0 {
		sources = []Source{NewCuratedSource()}
	}

	return &Refresher{
		sources:  sources,
		products: products,
		logs:     logs,
		logger:   logger,
	}
}

// Refresh loads every source and upserts its products. A source that fails
// is skipped; a persistence failure fails the run.
func (r *Refresher) Refresh(ctx context.Context) (*RefreshResult, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Refresher.Refresh")
	defer span.End()

	detail := "Starting automated loan product discovery"
	entry, err := r.logs.Append(ctx, &models.ProcessingLog{
		ProcessType: models.ProcessTypeLoanDiscovery,
		Status:      models.ProcessStatusStarted,
		Details:     &detail,
	})
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to record catalog refresh start")
		return nil, err
	}

	result, runErr := r.refresh(ctx)

	// Terminal log writes survive run cancellation
	finishCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		if err := r.logs.FinishWithCount(finishCtx, entry.ID, models.ProcessStatusFailed, fmt.Sprintf("Error during loan discovery: %v", runErr), 0); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to record catalog refresh failure")
		}

		r.logger.WithContext(ctx).WithError(runErr).Error("Catalog refresh failed")
		return nil, runErr
	}

	summary := fmt.Sprintf("Successfully discovered and saved %d loan products", result.Saved)
	if result.Discovered == 0 {
		summary = "No loan products discovered"
	}

	if err := r.logs.FinishWithCount(finishCtx, entry.ID, models.ProcessStatusCompleted, summary, result.Saved); err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"products_discovered": result.Discovered,
		"products_saved":      result.Saved,
	}).Info("Catalog refresh completed")

	return result, nil
}

func (r *Refresher) refresh(ctx context.Context) (*RefreshResult, error) {
	result := &RefreshResult{}

	var all []models.UpsertLoanProductRequest
	for _, src := range r.sources {
		products, err := src.Products(ctx)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"source": src.Name(),
			}).Error("Failed to load products from source")
			continue
		}

		r.logger.WithContext(ctx).WithFields(map[string]any{
			"source": src.Name(),
			"count":  len(products),
		}).Debugf("Found %d products from %s", len(products), src.Name())
		all = append(all, products...)
	}

	result.Discovered = len(all)

	for i := range all {
		if _, err := r.products.Upsert(ctx, &all[i]); err != nil {
			return result, err
		}
		result.Saved++
	}

	return result, nil
}

package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/smetacat/smetacat/internal/catalog"
	"github.com/smetacat/smetacat/internal/pricing"
	"github.com/smetacat/smetacat/internal/resolve"
)

// ResolveUnmatched maps a pending unmatched row to an existing material.
// The raw spelling becomes an alias so the next import matches directly,
// and the row's price, when present, is recorded as a manual observation.
func (o *Orchestrator) ResolveUnmatched(ctx context.Context, unmatchedID int64, materialID string) error {
	row, err := o.repo.GetUnmatched(ctx, unmatchedID)
	if err != nil {
		return err
	}
	if row.Status != ResolutionPending {
		return ErrAlreadyResolved
	}
	session, err := o.repo.GetSession(ctx, row.SessionID)
	if err != nil {
		return err
	}

	if err := o.repo.SetResolution(ctx, unmatchedID, ResolutionResolved, &materialID); err != nil {
		return err
	}

	alias := resolve.Normalize(row.RawName)
	if alias != "" {
		if err := o.aliases.AddAlias(ctx, materialID, alias, session.CustomerID, catalog.AliasSourceManual); err != nil {
			return fmt.Errorf("importer: register resolution alias: %w", err)
		}
	}

	if row.RawPrice != nil {
		sourceID, err := o.prices.CreateSource(ctx, pricing.SourceInput{
			Type:       pricing.SourceTypeManual,
			Name:       fmt.Sprintf("Resolved from session %d", row.SessionID),
			CustomerID: session.CustomerID,
			DocDate:    time.Now(),
		})
		if err != nil {
			return fmt.Errorf("importer: resolution source: %w", err)
		}
		if _, err := o.prices.AppendPrice(ctx, materialID, *row.RawPrice, "", time.Now(), sourceID); err != nil {
			return fmt.Errorf("importer: resolution price: %w", err)
		}
	}

	o.logger.Info("unmatched row resolved", "unmatched_id", unmatchedID, "material_id", materialID)
	return nil
}

// RejectUnmatched discards a pending unmatched row.
func (o *Orchestrator) RejectUnmatched(ctx context.Context, unmatchedID int64) error {
	if err := o.repo.SetResolution(ctx, unmatchedID, ResolutionRejected, nil); err != nil {
		return err
	}
	o.logger.Info("unmatched row rejected", "unmatched_id", unmatchedID)
	return nil
}

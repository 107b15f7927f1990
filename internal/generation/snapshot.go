package generation

import (
	"context"
	"fmt"

	"github.com/smallbiznis/invoicely/internal/config"
	directorydomain "github.com/smallbiznis/invoicely/internal/directory/domain"
	scheduledomain "github.com/smallbiznis/invoicely/internal/schedule/domain"
	taxdomain "github.com/smallbiznis/invoicely/internal/tax/domain"
)

// snapshot is everything an invoice needs that is read outside the
// generation transaction.
type snapshot struct {
	client *directorydomain.Client
	items  []scheduledomain.ScheduleItem
	totals taxdomain.Totals
}

func (o *Orchestrator) takeSnapshot(ctx context.Context, s *scheduledomain.Schedule, cfg config.SchedulerConfig) (*snapshot, error) {
	client, err := o.directory.GetClient(ctx, s.OrgID, s.ClientID)
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}

	items := make([]scheduledomain.ScheduleItem, 0, len(s.Items))
	lines := make([]taxdomain.Line, 0, len(s.Items))
	for _, item := range s.Items {
		if item.CatalogItemID != nil {
			catalog, err := o.directory.GetCatalogItem(ctx, s.OrgID, *item.CatalogItemID)
			if err != nil {
				return nil, fmt.Errorf("load catalog item %s: %w", *item.CatalogItemID, err)
			}
			item = refreshFromCatalog(item, catalog)
		}
		items = append(items, item)
		lines = append(lines, taxdomain.Line{
			Description:   item.Description,
			Quantity:      item.Quantity,
			Rate:          item.Rate,
			TaxableAmount: item.TaxableAmount,
			GSTRate:       item.GSTRate,
		})
	}

	totals, err := o.tax.Compute(taxdomain.Input{
		Lines:        lines,
		SupplyType:   o.tax.SupplyTypeFor(o.orgStateCode, client.GSTIN),
		RoundingMode: taxdomain.RoundingMode(cfg.RoundingMode),
	})
	if err != nil {
		return nil, fmt.Errorf("compute totals: %w", err)
	}

	return &snapshot{client: client, items: items, totals: totals}, nil
}

func refreshFromCatalog(item scheduledomain.ScheduleItem, catalog *directorydomain.CatalogItem) scheduledomain.ScheduleItem {
	if item.Description == "" {
		item.Description = catalog.Name
	}
	if catalog.HSNSAC != "" {
		item.HSNSAC = catalog.HSNSAC
	}
	item.GSTRate = catalog.GSTRate
	if item.Rate == nil && item.Quantity != nil && catalog.Rate != nil {
		rate := *catalog.Rate
		item.Rate = &rate
	}
	return item
}

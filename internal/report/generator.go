package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/deal"
	"github.com/Wuchinator/deal-pipeline/pkg/metrics"
)

const defaultPageSize = 500

type Generator struct {
	repo     Repository
	pageSize int
	metrics  *metrics.Pipeline
	logger   *zap.Logger
	now      func() time.Time
}

func NewGenerator(repo Repository, pageSize int, m *metrics.Pipeline, logger *zap.Logger) *Generator {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Generator{
		repo:     repo,
		pageSize: pageSize,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate scans every deal, counts the trailing week's claims and persists the report.
// Nothing is persisted when any step fails.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	start := g.now()
	rep, err := g.generate(ctx, start)
	g.metrics.ObserveJob("weekly_report", g.now().Sub(start), err)
	if err != nil {
		g.logger.Error("Failed to generate weekly report", zap.Error(err))
		return nil, err
	}

	g.logger.Info("Weekly report generated",
		zap.String("report_id", rep.ID.String()),
		zap.Int("total_deals", rep.TotalDeals),
		zap.Int("active_deals", rep.ActiveDeals),
		zap.Int64("total_claims", rep.TotalClaims),
		zap.Int64("new_claims", rep.WeeklyStats.NewClaims),
	)
	return rep, nil
}

func (g *Generator) generate(ctx context.Context, now time.Time) (*Report, error) {
	var (
		deals     []*deal.Deal
		newClaims int64
	)
	err := g.repo.WithSnapshot(ctx, func(ctx context.Context, snap Snapshot) error {
		deals = deals[:0]
		after := uuid.Nil
		for {
			page, err := snap.DealsPage(ctx, after, g.pageSize)
			if err != nil {
				return err
			}
			deals = append(deals, page...)
			if len(page) < g.pageSize {
				break
			}
			after = page[len(page)-1].ID
		}

		var err error
		newClaims, err = snap.CountClaimsSince(ctx, now.Add(-Week))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read deals: %w", err)
	}

	rep := Build(deals, newClaims, now)
	if err := g.repo.Save(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func (g *Generator) Latest(ctx context.Context) (*Report, error) {
	return g.repo.Latest(ctx)
}

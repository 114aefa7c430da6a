package services

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"projectflow/backend/internal/repository"
	"projectflow/backend/pkg/models"
)

const (
	recentWorkflowCount = 5
	statisticsPageSize  = 500
)

// StatisticsService derives aggregate counts from the three stores. The
// stores are read concurrently and independently.
type StatisticsService struct {
	repo repository.Repository
}

// NewStatisticsService creates a StatisticsService.
func NewStatisticsService(repo repository.Repository) *StatisticsService {
	return &StatisticsService{repo: repo}
}

// Statistics returns a snapshot of workflow, instance and rule counts.
func (s *StatisticsService) Statistics(ctx context.Context) (*models.Statistics, error) {
	ctx, span := tracer.Start(ctx, "StatisticsService.Statistics")
	defer span.End()

	var (
		workflows []*models.Workflow
		instances []*models.WorkflowInstance
		rules     []*models.BusinessRule
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		workflows, err = collect(gctx, func(p models.Page) ([]*models.Workflow, int, error) {
			return s.repo.ListWorkflows(gctx, models.WorkflowFilter{Page: p})
		})
		return err
	})
	g.Go(func() (err error) {
		instances, err = collect(gctx, func(p models.Page) ([]*models.WorkflowInstance, int, error) {
			return s.repo.ListInstances(gctx, models.InstanceFilter{Page: p})
		})
		return err
	})
	g.Go(func() (err error) {
		rules, err = collect(gctx, func(p models.Page) ([]*models.BusinessRule, int, error) {
			return s.repo.ListRules(gctx, models.RuleFilter{Page: p})
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &models.Statistics{
		WorkflowsByType:  make(map[string]int),
		InstancesByStage: make(map[string]int),
		RulesByType:      make(map[string]int),
		RecentWorkflows:  []*models.Workflow{},
	}

	stats.TotalWorkflows = len(workflows)
	for _, wf := range workflows {
		if wf.IsActive {
			stats.ActiveWorkflows++
		}
		stats.WorkflowsByType[wf.Type]++
	}

	stats.TotalInstances = len(instances)
	for _, inst := range instances {
		if inst.IsCompleted {
			stats.CompletedInstances++
		} else {
			stats.ActiveInstances++
		}
		stats.InstancesByStage[inst.CurrentStage]++
	}
	if stats.TotalInstances > 0 {
		stats.CompletionRate = float64(stats.CompletedInstances) / float64(stats.TotalInstances)
	}

	stats.TotalRules = len(rules)
	for _, r := range rules {
		if r.IsActive {
			stats.ActiveRules++
		}
		stats.RulesByType[r.RuleType]++
	}

	recent := append([]*models.Workflow(nil), workflows...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > recentWorkflowCount {
		recent = recent[:recentWorkflowCount]
	}
	stats.RecentWorkflows = append(stats.RecentWorkflows, recent...)

	return stats, nil
}

// collect pages through a list query until every match is read.
func collect[T any](ctx context.Context, list func(models.Page) ([]T, int, error)) ([]T, error) {
	var out []T
	page := models.Page{Limit: statisticsPageSize}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items, total, err := list(page)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		page.Offset += len(items)
		if len(items) == 0 || page.Offset >= total {
			return out, nil
		}
	}
}

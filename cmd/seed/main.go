package main

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"projectflow/backend/internal/config"
	"projectflow/backend/internal/events"
	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/repository"
	"projectflow/backend/internal/rules"
	"projectflow/backend/internal/services"
	"projectflow/backend/internal/validation"
	"projectflow/backend/pkg/models"
)

//go:embed seed.yaml
var defaultSeed []byte

// seedFile is the YAML layout of a seed file.
type seedFile struct {
	Workflows []models.WorkflowSpec `yaml:"workflows"`
	Rules     []models.RuleSpec     `yaml:"rules"`
}

func main() {
	var configFile, seedPath string

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Load workflows and business rules from a YAML seed file",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configFile, seedPath)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Path to config file")
	cmd.Flags().StringVar(&seedPath, "file", "", "Path to seed YAML (default: built-in demo data)")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile, seedPath string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	seed, err := readSeed(seedPath)
	if err != nil {
		return err
	}

	if cfg.DB.Driver != config.DriverPostgres {
		return fmt.Errorf("seeding requires db.driver %q", config.DriverPostgres)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		return err
	}
	store := repository.NewPostgresStore(pool)

	v, err := validation.New()
	if err != nil {
		return err
	}
	return apply(ctx, seed,
		services.NewWorkflowService(store, v, logger),
		services.NewRuleService(store, rules.NewEvaluator(), v, events.Nop{}, nil, logger),
		logger,
	)
}

func readSeed(path string) (*seedFile, error) {
	if path == "" {
		return parseSeed(bytes.NewReader(defaultSeed))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return parseSeed(f)
}

func parseSeed(r io.Reader) (*seedFile, error) {
	var seed seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &seed, nil
}

// apply creates every workflow and rule whose name is not already taken, so
// running the seed twice is harmless.
func apply(ctx context.Context, seed *seedFile, workflows *services.WorkflowService, ruleSvc *services.RuleService, logger *logging.Logger) error {
	existingWorkflows, err := existingNames(ctx, func(p models.Page) ([]string, int, error) {
		page, err := workflows.ListWorkflows(ctx, models.WorkflowFilter{Page: p})
		if err != nil {
			return nil, 0, err
		}
		names := make([]string, len(page.Items))
		for i, wf := range page.Items {
			names[i] = wf.Name
		}
		return names, page.Total, nil
	})
	if err != nil {
		return fmt.Errorf("list existing workflows: %w", err)
	}

	for i := range seed.Workflows {
		spec := &seed.Workflows[i]
		if existingWorkflows[spec.Name] {
			logger.Info("Skipping existing workflow", "name", spec.Name)
			continue
		}
		wf, err := workflows.CreateWorkflow(ctx, spec)
		if err != nil {
			return fmt.Errorf("seed workflow %q: %w", spec.Name, err)
		}
		logger.Info("Seeded workflow", "name", wf.Name, "id", wf.ID)
	}

	existingRules, err := existingNames(ctx, func(p models.Page) ([]string, int, error) {
		page, err := ruleSvc.ListRules(ctx, models.RuleFilter{Page: p})
		if err != nil {
			return nil, 0, err
		}
		names := make([]string, len(page.Items))
		for i, r := range page.Items {
			names[i] = r.Name
		}
		return names, page.Total, nil
	})
	if err != nil {
		return fmt.Errorf("list existing rules: %w", err)
	}

	for i := range seed.Rules {
		spec := &seed.Rules[i]
		if existingRules[spec.Name] {
			logger.Info("Skipping existing rule", "name", spec.Name)
			continue
		}
		rule, err := ruleSvc.CreateRule(ctx, spec)
		if err != nil {
			return fmt.Errorf("seed rule %q: %w", spec.Name, err)
		}
		logger.Info("Seeded rule", "name", rule.Name, "id", rule.ID)
	}

	logger.Info("Seeding complete")
	return nil
}

func existingNames(ctx context.Context, list func(models.Page) ([]string, int, error)) (map[string]bool, error) {
	names := make(map[string]bool)
	page := models.Page{Limit: models.DefaultPageLimit}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, total, err := list(page)
		if err != nil {
			return nil, err
		}
		for _, n := range batch {
			names[n] = true
		}
		page.Offset += len(batch)
		if len(batch) == 0 || page.Offset >= total {
			return names, nil
		}
	}
}

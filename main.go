package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for registry migrations
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/adapters/datasource"
	_ "github.com/prepflow-inc/prepflow-engine/pkg/adapters/datasource/mssql"
	_ "github.com/prepflow-inc/prepflow-engine/pkg/adapters/datasource/postgres"
	"github.com/prepflow-inc/prepflow-engine/pkg/artifacts"
	"github.com/prepflow-inc/prepflow-engine/pkg/config"
	"github.com/prepflow-inc/prepflow-engine/pkg/database"
	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/hitl"
	"github.com/prepflow-inc/prepflow-engine/pkg/llm"
	enginemcp "github.com/prepflow-inc/prepflow-engine/pkg/mcp"
	"github.com/prepflow-inc/prepflow-engine/pkg/mcp/tools"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
	"github.com/prepflow-inc/prepflow-engine/pkg/repositories"
	"github.com/prepflow-inc/prepflow-engine/pkg/sampling"
	"github.com/prepflow-inc/prepflow-engine/pkg/transform"
	"github.com/prepflow-inc/prepflow-engine/pkg/workflow"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	var (
		inputPath   = flag.String("input", "", "input CSV path (required when -source is csv)")
		sourceType  = flag.String("source", "csv", "dataset source: csv, postgres or mssql")
		table       = flag.String("table", "", "table to fetch when the source is a database")
		stratifyBy  = flag.String("stratify", "", "column for stratified sampling (empty = uniform)")
		seed        = flag.Int64("seed", 1, "sampling seed; same seed, plan and input reproduce a run")
		outDir      = flag.String("out", "artifacts", "directory for run artifacts")
		planPath    = flag.String("plan", "", "sampling plan YAML (empty = built-in five stages)")
		configPath  = flag.String("config", "", "config file (empty = ./config.yaml if present, else env)")
		interactive = flag.Bool("interactive", false, "answer questions on the console")
		assist      = flag.Bool("assist", false, "answer questions with the configured assist model")
		serveMCP    = flag.Bool("mcp", false, "expose pending questions over the MCP surface")
	)
	flag.Parse()

	// Load configuration
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath, Version)
	} else {
		cfg, err = config.Load(Version)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting prepflow-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("source", *sourceType),
		zap.Int64("seed", *seed),
		zap.Bool("registry", cfg.Registry.Enabled),
		zap.Bool("mcp", *serveMCP || cfg.MCP.Enabled))

	plan := sampling.DefaultPlan()
	if *planPath != "" {
		plan, err = sampling.LoadPlan(*planPath)
		if err != nil {
			logger.Fatal("Failed to load sampling plan", zap.Error(err))
		}
	}

	ds, err := loadTable(ctx, cfg, logger, *sourceType, *inputPath, *table)
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}
	logger.Info("Dataset loaded",
		zap.String("name", ds.Name),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("columns", len(ds.Columns)))

	// Run registry (optional). Migrations run on a short-lived database/sql
	// connection; the repositories share the pgx pool.
	var (
		recorder      workflow.RunRecorder
		runsRepo      repositories.RunRepository
		decisionsRepo repositories.DecisionRepository
	)
	if cfg.Registry.Enabled {
		db, err := database.NewRegistryConnection(ctx, &cfg.Registry)
		if err != nil {
			logger.Fatal("Failed to connect to run registry", zap.Error(err))
		}
		defer db.Close()

		if err := migrateRegistry(cfg, logger); err != nil {
			logger.Fatal("Failed to migrate run registry", zap.Error(err))
		}

		runsRepo = repositories.NewRunRepository(db)
		decisionsRepo = repositories.NewDecisionRepository(db)
		recorder = repositories.NewRunRecorder(runsRepo, decisionsRepo, logger)
	}

	port := buildAnswerPort(ctx, cfg, logger, portFlags{
		interactive: *interactive,
		assist:      *assist,
		mcp:         *serveMCP || cfg.MCP.Enabled,
	}, runsRepo, decisionsRepo)

	orch := workflow.NewOrchestrator(workflow.Deps{
		Config:     cfg,
		Logger:     logger,
		Plan:       plan,
		Sampler:    sampling.NewEngine(*stratifyBy, logger),
		Applier:    transform.NewApplier(logger),
		Port:       port,
		Artifacts:  artifacts.NewWriter(*outDir, logger),
		Recorder:   recorder,
		Progress:   workflow.NewLogProgress(logger),
		Seed:       *seed,
		SourceType: *sourceType,
	})

	result, err := orch.Run(ctx, ds)
	if err != nil {
		// The run never started; nothing was written.
		logger.Fatal("Run failed to start", zap.Error(err))
	}

	if result.Summary != "" {
		fmt.Println(result.Summary)
	}
	os.Exit(exitCode(result))
}

// buildLogger keys the zap config on the environment: console encoding
// locally, JSON everywhere else.
func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopmentConfig().Build()
	}
	return zap.NewProductionConfig().Build()
}

// loadTable reads the input dataset from a CSV file or a registered
// database adapter.
func loadTable(ctx context.Context, cfg *config.Config, logger *zap.Logger, sourceType, inputPath, table string) (*dataset.Table, error) {
	if sourceType == "csv" {
		if inputPath == "" {
			return nil, fmt.Errorf("-input is required when -source is csv")
		}
		return dataset.LoadCSV(inputPath)
	}

	if table == "" {
		return nil, fmt.Errorf("-table is required when -source is %s", sourceType)
	}
	adapter, err := datasource.New(sourceType, &cfg.Source, logger)
	if err != nil {
		return nil, err
	}
	defer adapter.Close()

	if err := adapter.TestConnection(ctx); err != nil {
		return nil, fmt.Errorf("source connection: %w", err)
	}
	return adapter.FetchTable(ctx, table, cfg.Source.FetchLimit)
}

// migrateRegistry applies the registry schema. golang-migrate wants a
// database/sql handle, so this opens and closes its own connection.
func migrateRegistry(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Registry.ConnectionString())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()
	return database.RunMigrations(sqlDB, "migrations", logger)
}

type portFlags struct {
	interactive bool
	assist      bool
	mcp         bool
}

// buildAnswerPort picks how pending questions get answered. Console wins
// over assist, assist over MCP; unattended runs take every recommended
// default. The repositories may be nil, which drops the MCP registry tools
// but keeps the question tools.
func buildAnswerPort(ctx context.Context, cfg *config.Config, logger *zap.Logger, flags portFlags, runs repositories.RunRepository, decisions repositories.DecisionRepository) hitl.AnswerPort {
	switch {
	case flags.interactive:
		return hitl.NewConsolePort(os.Stdin, os.Stdout, cfg.HITL.AnsweredBy)

	case flags.assist:
		if !cfg.Assist.IsAvailable() {
			logger.Fatal("-assist requires ASSIST_BASE_URL and ASSIST_MODEL")
		}
		client, err := llm.NewClient(&llm.Config{
			Endpoint: cfg.Assist.BaseURL,
			Model:    cfg.Assist.Model,
			APIKey:   cfg.Assist.APIKey,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to build assist client", zap.Error(err))
		}
		return hitl.NewAssistPort(client, logger)

	case flags.mcp:
		broker := enginemcp.NewQuestionBroker(logger)
		srv := enginemcp.NewServer("prepflow-engine", cfg.Version, enginemcp.NewAuditLogger(logger).Hooks(), logger)
		tools.RegisterQuestionTools(srv.MCP(), &tools.QuestionToolDeps{Broker: broker, Logger: logger})
		if runs != nil && decisions != nil {
			tools.RegisterRunTools(srv.MCP(), &tools.RunToolDeps{Runs: runs, Decisions: decisions, Logger: logger})
		}
		go func() {
			if err := srv.Serve(ctx, cfg.MCP.Addr()); err != nil {
				logger.Error("MCP server stopped", zap.Error(err))
			}
		}()
		logger.Info("MCP surface listening", zap.String("addr", cfg.MCP.Addr()))
		return broker

	default:
		return hitl.NewAutoDefaultPort()
	}
}

// exitCode maps the finished run onto a shell status: 0 when the run
// completed, 2 when it stopped waiting on decisions or strategy review,
// 1 for failures and cancellation.
func exitCode(result *models.WorkflowResult) int {
	switch {
	case result.Success:
		return 0
	case result.Phase == models.RunPhaseHITLPending,
		result.Phase == models.RunPhaseHaltedReview:
		return 2
	default:
		return 1
	}
}

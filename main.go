package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"landsale/config"
	"landsale/documents"
	"landsale/logging"
	"landsale/metrics"
	"landsale/models"
	"landsale/scheduler"
	"landsale/services"
	"landsale/storage"
	"landsale/workers"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "landsale",
		Short:         "Subdivided land sales: lots, applications, reservations and contracts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		seedCmd(),
		auditCmd(),
		documentsCmd(),
		applicationCmd(),
		reservationCmd(),
		contractCmd(),
		activityCmd(),
	)
	return rootCmd
}

// app holds everything a command needs, built once before any work starts.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	store     storage.Store
	catalog   *services.Catalog
	docs      *services.DocumentService
	lifecycle *services.Lifecycle
	closers   []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}
	a := &app{cfg: cfg, log: log, closers: []func() error{closeLog}}

	switch cfg.Database.Driver {
	case storage.DialectPostgres:
		pg, err := storage.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.store = pg
		log.Info("connected to postgres", zap.String("url", maskConnectionString(cfg.Database.URL)))
	default:
		sq, err := storage.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.store = sq
		log.Info("sqlite database", zap.String("path", cfg.Database.Path))
	}
	a.closers = append(a.closers, a.store.Close)

	docStore, err := newDocumentStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.catalog = services.NewCatalog(a.store, log)
	a.docs = services.NewDocumentService(a.store, documents.NewSheetRenderer(), docStore, log)
	a.lifecycle = services.NewLifecycle(a.store, a.docs, log)
	return a, nil
}

func newDocumentStore(ctx context.Context, cfg *config.Config) (services.DocumentStore, error) {
	s3cfg := storage.S3Config(cfg.S3)
	if s3cfg.Enabled() {
		u, err := storage.NewS3DocumentStore(ctx, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("s3 document store: %w", err)
		}
		return u, nil
	}
	if cfg.Documents.Dir == "" {
		return workers.NewNoOpUploader(), nil
	}
	u, err := storage.NewDiskDocumentStore(cfg.Documents.Dir)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	_ = a.log.Sync()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintln(os.Stderr, "close:", err)
		}
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the document and audit workers with the metrics listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Migrate(ctx); err != nil {
				return err
			}

			documentWorker := workers.NewDocumentWorker(a.docs, a.log, a.cfg.Documents.BatchSize)
			go documentWorker.Run(ctx, a.cfg.Documents.Interval)

			auditWorker := workers.NewAuditWorker(a.catalog, a.log, a.cfg.Scheduler.AuditRepair)
			go auditWorker.Run(ctx, 6*time.Hour)

			sched := scheduler.New(a.cfg.Scheduler, a.log)
			sched.SetWorkers(documentWorker, auditWorker)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()
			auditWorker.Trigger()

			srv := &http.Server{
				Addr:              a.cfg.MetricsAddr,
				Handler:           metrics.Handler(a.store),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.Error("metrics listener", zap.Error(err))
					stop()
				}
			}()
			a.log.Info("landsale running", zap.String("metrics", a.cfg.MetricsAddr))

			<-ctx.Done()
			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Migrate(cmd.Context()); err != nil {
				return err
			}
			a.log.Info("schema up to date", zap.String("dialect", a.store.Dialect()))
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the lands and lots listed in LANDS_DIR",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Migrate(ctx); err != nil {
				return err
			}

			created := 0
			for name, entry := range a.cfg.Lands {
				land, lots := landFromCatalog(entry)
				_, err := a.catalog.CreateLand(ctx, land, lots)
				if models.IsDuplicate(err) {
					a.log.Info("land already present", zap.String("land", name))
					continue
				}
				if err != nil {
					return fmt.Errorf("seed %s: %w", name, err)
				}
				created++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d land(s) from %s\n", created, a.cfg.LandsDir)
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check land counters against lot statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			drifted, err := a.catalog.Audit(ctx, repair)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(drifted) == 0 {
				fmt.Fprintln(out, "all land counters match their lots")
				return nil
			}
			for _, d := range drifted {
				fmt.Fprintln(out, d.String())
			}
			if !repair {
				return fmt.Errorf("%d land(s) drifted; rerun with --repair to recount", len(drifted))
			}
			fmt.Fprintf(out, "recounted %d land(s)\n", len(drifted))
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "rewrite drifted counters from lot statuses")
	return cmd
}

func documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Render and upload missing contract documents once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res := workers.NewDocumentWorker(a.docs, a.log, a.cfg.Documents.BatchSize).ProcessBatch(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d, failed %d, gave up %d, skipped %d\n",
				res.Processed, res.Failed, res.GaveUp, res.Skipped)
			return nil
		},
	}
	cmd.AddCommand(documentsFetchCmd())
	return cmd
}

func landFromCatalog(entry *config.LandCatalog) (*models.Land, []models.Lot) {
	land := &models.Land{
		Name:      entry.Name,
		Location:  entry.Location,
		TotalArea: config.Decimal(entry.TotalArea),
	}
	lots := make([]models.Lot, 0, len(entry.Lots))
	for _, l := range entry.Lots {
		lots = append(lots, models.Lot{
			BlockNumber: l.Block,
			LotNumber:   l.Lot,
			Size:        config.Decimal(l.Size),
			PricePerSqm: config.Decimal(l.PricePerSqm),
			TotalAmount: config.Decimal(l.TotalAmount),
			LotType:     l.Type,
		})
	}
	return land, lots
}

// maskConnectionString masks the password in a connection string for logging
func maskConnectionString(connStr string) string {
	scheme := strings.Index(connStr, "://")
	if scheme < 0 {
		return connStr
	}
	rest := connStr[scheme+3:]
	at := strings.Index(rest, "@")
	if at < 0 {
		return connStr
	}
	colon := strings.Index(rest[:at], ":")
	if colon < 0 {
		return connStr
	}
	return connStr[:scheme+3] + rest[:colon+1] + "****" + rest[at:]
}

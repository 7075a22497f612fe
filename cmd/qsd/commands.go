package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/batchstore"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/config"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/credentials"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/exporter"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/maintenance"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/notify"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/parser"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/runner"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/watcher"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/wikibase"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/worker"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/web/api"
)

var (
	createName     string
	createUsername string
	createCSV      bool
	createBlock    bool
	createCombine  bool
	listStatus     string
	listUsername   string
	exportOut      string
	dropUsername   string
	workerWeb      bool
)

func init() {
	parseCmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Parse a batch file and print the commands without saving",
		Args:  cobra.ExactArgs(1),
		RunE:  runParse,
	}
	parseCmd.Flags().BoolVar(&createCSV, "csv", false, "parse as grid (CSV) notation")
	rootCmd.AddCommand(parseCmd)

	createCmd := &cobra.Command{
		Use:   "create FILE",
		Short: "Parse a batch file and save it for execution",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreate,
	}
	createCmd.Flags().StringVar(&createName, "name", "", "batch name (defaults to file name)")
	createCmd.Flags().StringVar(&createUsername, "username", "", "owner of the batch")
	createCmd.Flags().BoolVar(&createCSV, "csv", false, "parse as grid (CSV) notation")
	createCmd.Flags().BoolVar(&createBlock, "block-on-errors", false, "stop the batch at the first failed command")
	createCmd.Flags().BoolVar(&createCombine, "combine", false, "combine consecutive edits to the same entity into one write")
	rootCmd.AddCommand(createCmd)

	runCmd := &cobra.Command{
		Use:   "run BATCH_ID",
		Short: "Run one batch to completion",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	rootCmd.AddCommand(runCmd)

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run batches continuously as they become available",
		RunE:  runWorker,
	}
	workerCmd.Flags().StringVar(&dropUsername, "drop-username", "", "owner for batches ingested from the drop directory")
	workerCmd.Flags().BoolVar(&workerWeb, "web", false, "serve the HTTP API from this process so command progress streams live")
	rootCmd.AddCommand(workerCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web API server",
		RunE:  runServe,
	}
	rootCmd.AddCommand(serveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List batches",
		RunE:  runList,
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().StringVar(&listUsername, "username", "", "filter by owner")
	rootCmd.AddCommand(listCmd)

	stopCmd := &cobra.Command{
		Use:   "stop BATCH_ID",
		Short: "Stop a running batch at the next command boundary",
		Args:  cobra.ExactArgs(1),
		RunE:  runStop,
	}
	rootCmd.AddCommand(stopCmd)

	restartCmd := &cobra.Command{
		Use:   "restart BATCH_ID",
		Short: "Move a stopped batch back to the run queue",
		Args:  cobra.ExactArgs(1),
		RunE:  runRestart,
	}
	rootCmd.AddCommand(restartCmd)

	exportCmd := &cobra.Command{
		Use:   "export BATCH_ID",
		Short: "Export a batch's commands and results as CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (defaults to stdout)")
	rootCmd.AddCommand(exportCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reset stale running batches left behind by dead workers",
		RunE:  runSweep,
	}
	rootCmd.AddCommand(sweepCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*batchstore.Store, error) {
	return batchstore.New(cfg.General.DatabasePath)
}

// clientFactory builds per-user API clients backed by the credentials file
func clientFactory(cfg *config.Config) (runner.ClientFactory, error) {
	creds, err := credentials.NewFileProvider(cfg.General.CredentialsPath)
	if err != nil {
		return nil, err
	}
	return func(username string) (runner.API, error) {
		token, err := creds.Token(username)
		if err != nil {
			return nil, err
		}
		return wikibase.NewClient(wikibase.Config{
			Endpoint:  cfg.API.Endpoint,
			Token:     token,
			UserAgent: cfg.API.UserAgent,
			Timeout:   time.Duration(cfg.API.TimeoutSecs) * time.Second,
		})
	}, nil
}

func buildBatch(path string) (*parser.BatchBuilder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := createName
	if name == "" {
		name = path
	}
	if createCSV {
		return parser.NewGrid(name, createUsername, string(data))
	}
	return parser.NewV1(name, createUsername, string(data)), nil
}

func runParse(cmd *cobra.Command, args []string) error {
	builder, err := buildBatch(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tOPERATION\tSTATUS\tERROR\tRAW")
	for _, c := range builder.Commands {
		errText := ""
		if c.Error != nil {
			errText = c.Error.Message
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", c.Index, c.Operation, c.Status, errText, c.Raw)
	}
	return w.Flush()
}

func runCreate(cmd *cobra.Command, args []string) error {
	if createUsername == "" {
		return fmt.Errorf("--username is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	builder, err := buildBatch(args[0])
	if err != nil {
		return err
	}
	builder.Batch.BlockOnErrors = createBlock
	builder.Batch.CombineCommands = createCombine

	if err := builder.Commit(store); err != nil {
		return err
	}
	fmt.Printf("Created batch %d (%d commands)\n", builder.Batch.ID, len(builder.Commands))
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid batch id %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	factory, err := clientFactory(cfg)
	if err != nil {
		return err
	}

	r := runner.New(store, factory)
	r.OnEvent(func(e runner.Event) {
		if e.Kind == "command" {
			log.Printf("batch %d command %d: %s %s", e.BatchID, e.Index, e.Status, e.Error)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.Run(ctx, id); err != nil {
		return err
	}

	status, err := store.BatchStatus(id)
	if err != nil {
		return err
	}
	fmt.Printf("Batch %d finished with status %s\n", id, status)
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	factory, err := clientFactory(cfg)
	if err != nil {
		return err
	}

	notifier := notify.Notifier(notify.NoopNotifier{})
	if cfg.Notifications.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notifications.WebhookURL)
	}

	var server *api.Server
	var forward func(runner.Event)
	if workerWeb {
		addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
		server = api.NewServer(store, addr)
		forward = server.BroadcastRunnerEvents()
		log.Printf("serving on http://%s", addr)
	}

	r := runner.New(store, factory)
	r.OnEvent(func(e runner.Event) {
		if forward != nil {
			forward(e)
		}
		if e.Kind != "batch" {
			return
		}
		switch domain.BatchStatus(e.Status) {
		case domain.BatchDone:
			notifier.Send(notify.BatchDone(e.BatchID))
		case domain.BatchBlocked:
			notifier.Send(notify.BatchBlocked(e.BatchID, e.Error))
		}
	})

	w := worker.New(store, r, worker.Config{
		MaxParallelBatches: cfg.Worker.MaxParallelBatches,
		PollInterval:       time.Duration(cfg.Worker.PollIntervalSecs) * time.Second,
	})
	log.Printf("worker %s started", w.ID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if server != nil {
		go func() {
			if err := server.Start(); err != nil {
				log.Printf("web server: %v", err)
			}
		}()
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return w.Run(ctx) })

	sweeper, err := maintenance.New(store, cfg.Worker.SweepCron,
		time.Duration(cfg.Worker.StaleAfterMins)*time.Minute)
	if err != nil {
		return err
	}
	group.Go(func() error { return sweeper.Run(ctx) })

	if cfg.General.DropDir != "" {
		if dropUsername == "" {
			return fmt.Errorf("--drop-username is required when a drop directory is configured")
		}
		dw, err := watcher.New(store, cfg.General.DropDir, dropUsername)
		if err != nil {
			return err
		}
		defer dw.Close()
		group.Go(func() error { return dw.Run(ctx) })
	}

	if err := group.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(store, addr)
	log.Printf("serving on http://%s", addr)
	return server.Start()
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	batches, err := store.ListBatches(batchstore.ListOptions{
		Username: listUsername,
		Status:   domain.BatchStatus(listStatus),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUSER\tSTATUS\tUPDATED\tMESSAGE")
	for _, b := range batches {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.Name, b.Username, b.Status,
			b.UpdatedAt.Format("2006-01-02 15:04"), b.Message)
	}
	return w.Flush()
}

func runStop(cmd *cobra.Command, args []string) error {
	return withBatchID(args[0], func(store *batchstore.Store, id int) error {
		if err := store.StopBatch(id); err != nil {
			return err
		}
		fmt.Printf("Batch %d stopped\n", id)
		return nil
	})
}

func runRestart(cmd *cobra.Command, args []string) error {
	return withBatchID(args[0], func(store *batchstore.Store, id int) error {
		if err := store.RestartBatch(id); err != nil {
			return err
		}
		fmt.Printf("Batch %d queued for restart\n", id)
		return nil
	})
}

func runExport(cmd *cobra.Command, args []string) error {
	return withBatchID(args[0], func(store *batchstore.Store, id int) error {
		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return exporter.WriteBatch(store, id, out)
	})
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.SweepStaleRunning(
		time.Duration(cfg.Worker.StaleAfterMins)*time.Minute,
		"reset by manual sweep")
	if err != nil {
		return err
	}
	fmt.Printf("Reset %d stale batches\n", n)
	return nil
}

func withBatchID(arg string, fn func(*batchstore.Store, int) error) error {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid batch id %q", arg)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store, id)
}

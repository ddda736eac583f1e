package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"debtbook/internal/amqp"
	"debtbook/internal/cli"
	"debtbook/internal/config"
	"debtbook/internal/log"
	"debtbook/internal/services"
	"debtbook/internal/storage"
)

// app holds what every subcommand needs once the root pre-run has opened
// the ledger.
type app struct {
	dbPath string

	cfg    *config.Config
	logger *log.Logger
	svc    *services.LedgerService
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:               "debtbook",
		Short:             "Track what admins owe for products taken on credit",
		Long:              `debtbook records products taken on credit by admins in a SQLite ledger and reports who owes what.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
	}
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (default: $SQLITE_DB_PATH)")

	root.AddCommand(
		newMigrateCmd(a),
		newAdminCmd(a),
		newNicknameCmd(a),
		newProductCmd(a),
		newDebtCmd(a),
		newReportCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command, _ []string) error {
	cli.LoadEnvFile()

	cfg := config.Load()
	if a.dbPath != "" {
		cfg.SQLiteDBPath = a.dbPath
	}
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := storage.NewSQLiteRepository(ctx, cli.StoreOptions(cfg, logger))
	if err != nil {
		cli.LogStoreError(ctx, logger, err, cfg.SQLiteDBPath)
		return fmt.Errorf("open ledger: %w", err)
	}

	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			publisher = client
		}
	}

	a.cfg = cfg
	a.logger = logger
	a.svc = services.NewLedgerService(store, publisher, logger)
	return nil
}

func (a *app) close() error {
	if a.svc == nil {
		return nil
	}
	err := a.svc.Close()
	a.svc = nil
	return err
}

// execute runs the command line in args, writing command output to out.
func execute(ctx context.Context, args []string, out io.Writer) error {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		os.Exit(1)
	}
}

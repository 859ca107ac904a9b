package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sixpeteunder/orientdb-odm/app"
	"github.com/sixpeteunder/orientdb-odm/config"
	"github.com/sixpeteunder/orientdb-odm/config/setup"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd, c := newRootCmd()
	err := rootCmd.ExecuteContext(ctx)
	c.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the wired application into subcommands.
type cli struct {
	app    *app.App
	logger *slog.Logger
	output string
}

func newRootCmd() (*cobra.Command, *cli) {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:           "orientdb-odm",
		Short:         "Inspect an OrientDB database through the document mapper",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.init(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.output, "output", "o", "json", "output format: json or yaml")

	rootCmd.AddCommand(
		newFindCmd(c),
		newRecordsCmd(c),
		newQueryCmd(c),
		newClassesCmd(c),
		newVersionCmd(),
	)
	return rootCmd, c
}

func (c *cli) init(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	c.logger = setupLogger(cfg)
	slog.SetDefault(c.logger)

	application, err := setup.InitApp(ctx, cfg, c.logger)
	if err != nil {
		c.logger.Error("failed to initialize application", "error", err)
		return err
	}
	c.app = application
	return nil
}

func (c *cli) close() {
	if c.app != nil {
		setup.Shutdown(c.app, c.logger)
		c.app = nil
	}
}

func setupLogger(cfg *config.Config) *slog.Logger {
	return app.NewLogger(cfg.Env, cfg.LogLevel)
}

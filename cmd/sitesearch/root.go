package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/sitesearch/pkg/config"
)

// cli carries state shared by every subcommand
type cli struct {
	schemaFile string
	logLevel   string

	cfg *config.Config
	log *logrus.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "sitesearch",
		Short:         "Weighted site-wide full-text search",
		Long:          "Maintains a denormalized full-text search table over a content store and serves ranked keyword queries.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}

	root.PersistentFlags().StringVar(&c.schemaFile, "schema", "", "schema file (overrides SITESEARCH_SCHEMA_FILE)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (overrides SITESEARCH_LOG_LEVEL)")

	root.AddCommand(
		c.serveCommand(),
		c.installCommand(),
		c.uninstallCommand(),
		c.regenerateCommand(),
		c.indexCommand(),
		c.deleteCommand(),
		c.searchCommand(),
	)
	return root
}

func (c *cli) load() error {
	if c.schemaFile != "" {
		os.Setenv("SITESEARCH_SCHEMA_FILE", c.schemaFile)
	}
	if c.logLevel != "" {
		os.Setenv("SITESEARCH_LOG_LEVEL", c.logLevel)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.log = setupLogger(cfg.Observability.LogLevel.String())
	return nil
}

// run opens the application, hands it to fn and always closes it. Failures
// are logged before they are returned to cobra.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, c.cfg, c.log)
	if err != nil {
		c.log.Errorf("Failed to start: %v", err)
		return err
	}
	defer func() {
		if err := a.Close(ctx); err != nil {
			c.log.Warnf("Cleanup failed: %v", err)
		}
	}()

	if err := fn(ctx, a); err != nil {
		c.log.Errorf("%s failed: %v", cmd.Name(), err)
		return err
	}
	return nil
}

func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func parseDocumentID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid document id %q", arg)
	}
	return id, nil
}

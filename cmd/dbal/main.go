// Command dbal inspects and queries a database configured by DSN or by a
// YAML configuration file.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coregx/dbal"
)

type app struct {
	configPath string
	dsn        string
	verbose    bool
	out        io.Writer
	errOut     io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "dbal",
		Short:         "Inspect and query MySQL, PostgreSQL, SQLite, SQL Server and Oracle databases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to the connection configuration file")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "Connection DSN, e.g. pgsql:host=localhost;dbname=app")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "Log connection and query events to stderr")
	root.MarkFlagsMutuallyExclusive("config", "dsn")

	root.AddCommand(
		&cobra.Command{
			Use:   "ping",
			Short: "Open the connection and report the server version",
			Args:  cobra.NoArgs,
			RunE:  a.runPing,
		},
		newTablesCmd(a),
		&cobra.Command{
			Use:   "describe <table>",
			Short: "Show the columns and keys of a table",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runDescribe,
		},
		&cobra.Command{
			Use:   "sql <statement>",
			Short: "Run a statement and print its result",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runSQL,
		},
	)
	return root
}

// connect opens the configured connection.
func (a *app) connect(ctx context.Context) (*dbal.Connection, error) {
	var cfg dbal.Config
	switch {
	case a.configPath != "":
		var err error
		if cfg, err = dbal.LoadConfig(a.configPath); err != nil {
			return nil, fmt.Errorf("cannot load config: %w", err)
		}
	case a.dsn != "":
		cfg = dbal.DefaultConfig(a.dsn)
	default:
		return nil, fmt.Errorf("either --config or --dsn is required")
	}

	opts := []dbal.Option{}
	if a.verbose {
		opts = append(opts, dbal.WithLogger(dbal.NewTextLogger(a.errOut, slog.LevelDebug)))
	}
	conn, err := dbal.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := conn.Open(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

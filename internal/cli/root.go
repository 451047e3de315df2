// Package cli implements the main command: it tails JSON-lines logs into
// the search process and queries it over RPC.
package cli

import (
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

// ClientFactory connects to the search process at addr.
type ClientFactory func(addr string, timeout time.Duration) (SearchClient, io.Closer, error)

// DialRPC is the production ClientFactory.
func DialRPC(addr string, timeout time.Duration) (SearchClient, io.Closer, error) {
	c := NewRPCClient(addr, timeout)
	return c, c, nil
}

type rootOptions struct {
	addr     string
	timeout  time.Duration
	logLevel string
	logDir   string
	connect  ClientFactory
}

// app carries what every subcommand shares once flags are parsed.
type app struct {
	opts   *rootOptions
	client SearchClient
	closer io.Closer
}

// NewRootCommand builds the command tree. connect is called once, before
// the first subcommand that needs the search process runs.
func NewRootCommand(connect ClientFactory) *cobra.Command {
	opts := &rootOptions{connect: connect}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "main",
		Short: "Index and search JSON-lines logs",
		Long: `main tails JSON-lines log files, sends them to the search process as
one corpus and runs boolean queries against the active index generation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			slog.SetDefault(logger.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", "localhost:9400", "address of the search process RPC listener")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-call timeout")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logDir, "log-dir", ".", "directory relative record paths are resolved against")

	root.AddCommand(
		newIngestCmd(a),
		newWatchCmd(a),
		newSearchCmd(a),
		newReplCmd(a),
		newGenerationCmd(a),
	)
	return root
}

func (a *app) searchClient() (SearchClient, error) {
	if a.client != nil {
		return a.client, nil
	}
	client, closer, err := a.opts.connect(a.opts.addr, a.opts.timeout)
	if err != nil {
		return nil, err
	}
	a.client, a.closer = client, closer
	return client, nil
}

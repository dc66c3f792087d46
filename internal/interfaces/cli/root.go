// Package cli implements onchainctl, the operator tool for the
// reconciliation worker.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	touristapp "github.com/tsafe/backend/internal/application/tourist"
	"github.com/tsafe/backend/internal/domain/shared"
	"github.com/tsafe/backend/internal/infrastructure/onchain"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Operations is what the commands need from the tourist service.
type Operations interface {
	Diagnose(ctx context.Context) (onchain.Diagnostics, error)
	RunWorkerPass(ctx context.Context) (onchain.PassResult, error)
	Get(ctx context.Context, actor touristapp.Actor, id uuid.UUID, decrypt bool) (*touristapp.TouristResponse, error)
	RetryFailed(ctx context.Context, actor touristapp.Actor, touristID, itemID uuid.UUID) (*touristapp.WorkItemResponse, error)
	List(ctx context.Context, actor touristapp.Actor, filter shared.Filter) (*touristapp.ListResponse, error)
}

// Connector opens the backing services. release closes them.
type Connector func(ctx context.Context, opts *RootOptions) (ops Operations, release func(), err error)

// operator is the actor used for every command. The tool runs with database
// credentials, so it acts with admin rights.
var operator = touristapp.Actor{IsAdmin: true}

// NewRootCommand creates the onchainctl root command.
func NewRootCommand(connect Connector) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "onchainctl",
		Short: "Operate the on-chain reconciliation worker",
		Long: `Inspect and drive the worker that anchors tourist identities on the ledger.

Commands connect to the same database and ledger as the server using its
configuration (config.toml and TSAFE_ environment variables).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newStatusCommand(opts, connect))
	cmd.AddCommand(newDiagnoseCommand(opts, connect))
	cmd.AddCommand(newPassCommand(opts, connect))
	cmd.AddCommand(newItemsCommand(opts, connect))
	cmd.AddCommand(newRetryCommand(opts, connect))

	return cmd
}

// withOperations connects, runs fn and releases the connection.
func withOperations(cmd *cobra.Command, opts *RootOptions, connect Connector, fn func(context.Context, Operations) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ops, release, err := connect(ctx, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "connect", err)
	}
	if release != nil {
		defer release()
	}
	return fn(ctx, ops)
}

func parseID(name, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s %q", name, value))
	}
	return id, nil
}

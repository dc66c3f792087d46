package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/infrastructure/config"
	"github.com/tsafe/backend/internal/infrastructure/logger"
	"github.com/tsafe/backend/internal/infrastructure/migration"
	"github.com/tsafe/backend/migrations"
)

// Database settings come from the server's configuration, so the usual
// TSAFE_DATABASE_* variables apply.
type options struct {
	path     string
	logLevel string
	log      *zap.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Tourist safety database migration tool",
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			log, err := logger.New(logger.Config{Level: opts.logLevel, Format: "console", Output: "stdout", TimeFormat: time.DateTime})
			opts.log = log
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = opts.log.Sync()
		},
	}
	root.PersistentFlags().StringVar(&opts.path, "path", "", "read migrations from this directory instead of the embedded set")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		opts.migratorCommand("up", "Apply all pending migrations", cobra.NoArgs,
			func(m *migration.Migrator, _ []string) error { return m.Up() }),
		opts.migratorCommand("down", "Roll back all migrations", cobra.NoArgs,
			func(m *migration.Migrator, _ []string) error { return m.Down() }),
		opts.migratorCommand("step <n>", "Apply n migrations; negative n rolls back", cobra.ExactArgs(1),
			func(m *migration.Migrator, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				return m.Steps(n)
			}),
		opts.migratorCommand("goto <version>", "Migrate up or down to version", cobra.ExactArgs(1),
			func(m *migration.Migrator, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return m.GoTo(uint(v))
			}),
		opts.migratorCommand("force <version>", "Record version as applied without running it", cobra.ExactArgs(1),
			func(m *migration.Migrator, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return m.Force(v)
			}),
		opts.migratorCommand("version", "Show the applied version", cobra.NoArgs, opts.printVersion),
		opts.dropCommand(),
		opts.createCommand(),
		opts.listCommand(),
		opts.validateCommand(),
	)
	return root
}

func (o *options) source() fs.FS {
	if o.path != "" {
		return os.DirFS(o.path)
	}
	return migrations.FS
}

// migratorCommand wraps fn with a connection to the configured database.
func (o *options) migratorCommand(use, short string, args cobra.PositionalArgs, fn func(*migration.Migrator, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			db, err := sql.Open("postgres", cfg.Database.DSN())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}

			m, err := migration.NewFromFS(db, o.source(), o.log)
			if err != nil {
				return err
			}
			defer m.Close()
			return fn(m, args)
		},
	}
}

func (o *options) printVersion(m *migration.Migrator, _ []string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		o.log.Info("No migrations applied")
		return nil
	}
	o.log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func (o *options) dropCommand() *cobra.Command {
	var confirm bool
	cmd := o.migratorCommand("drop", "Drop every object in the database", cobra.NoArgs,
		func(m *migration.Migrator, _ []string) error {
			if !confirm {
				return errors.New("drop cancelled, pass --confirm")
			}
			return m.Drop()
		})
	cmd.Flags().BoolVar(&confirm, "confirm", false, "really drop everything")
	return cmd
}

func (o *options) createCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> [description]",
		Short: "Write a new up/down migration pair",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := o.path
			if dir == "" {
				dir = "migrations"
			}
			var description string
			if len(args) == 2 {
				description = args[1]
			}
			mf, err := migration.CreateMigration(dir, args[0], description, time.Now())
			if err != nil {
				return err
			}
			o.log.Info("Migration created",
				zap.String("version", mf.Version),
				zap.String("up_file", mf.UpPath),
				zap.String("down_file", mf.DownPath),
			)
			return nil
		},
	}
}

func (o *options) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := migration.ListMigrations(o.source())
			if err != nil {
				return err
			}
			for _, m := range list {
				note := ""
				if !m.HasDown {
					note = " (no down)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %d  %s%s\n", m.Version, m.Name, note)
			}
			return nil
		},
	}
}

func (o *options) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every migration has a down file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := migration.Validate(o.source()); err != nil {
				return err
			}
			o.log.Info("Migration set is valid")
			return nil
		},
	}
}

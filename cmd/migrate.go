package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type migrator interface {
	Migrate(ctx context.Context) error
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Applies the PostgreSQL schema. The SQLite store migrates when it is opened
and the in-memory store has no schema, so for those drivers this is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := stateFrom(cmd.Context())
			if err != nil {
				return err
			}
			m, ok := st.app.GetStore().(migrator)
			if !ok {
				st.logger.Info("store has no explicit migrations", zap.String("driver", st.cfg.Store.Driver))
				return nil
			}
			if err := m.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			st.logger.Info("schema applied", zap.String("driver", st.cfg.Store.Driver))
			return nil
		},
	}
}

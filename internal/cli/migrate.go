package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/memkeeper/internal/store"
	"github.com/lazypower/memkeeper/internal/store/pgstore"
)

var (
	migrateFrom          string
	migrateTo            string
	migrateDryRun        bool
	migrateSequencesOnly bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy a SQLite database into Postgres",
	Long: `Copy every user, memory and image from a SQLite database into Postgres,
keeping ids. The source may be a memkeeper database or one written by the
previous backend; it is read as-is and never migrated. Rows already present in the target are skipped, so the command
can be re-run. Id sequences are reset afterwards so new rows do not collide.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFrom, "from", "", "source SQLite file (default: configured database.path)")
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "target Postgres URL (default: configured database.url)")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "report what would be copied without writing")
	migrateCmd.Flags().BoolVar(&migrateSequencesOnly, "fix-sequences", false, "only reset the target's id sequences")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	target := migrateTo
	if target == "" {
		target = cfg.Database.URL
	}
	if target == "" && !migrateDryRun {
		return fmt.Errorf("no target: pass --to or set DATABASE_URL")
	}

	if migrateSequencesOnly {
		pg, err := pgstore.Open(ctx, target)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.ResetSequences(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "sequences reset")
		return nil
	}

	source := migrateFrom
	if source == "" {
		if source, err = sqlitePath(cfg); err != nil {
			return err
		}
	}
	snap, err := store.ExportFile(ctx, source)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "source %s: %d users, %d memories, %d images\n",
		source, len(snap.Users), len(snap.Memories), snap.ImageCount())
	if snap.Skipped > 0 {
		logger.Warn("source rows skipped", "count", snap.Skipped)
		fmt.Fprintf(out, "skipped %d rows with missing owner, username or url\n", snap.Skipped)
	}
	if migrateDryRun {
		return nil
	}

	pg, err := pgstore.Open(ctx, target)
	if err != nil {
		return err
	}
	defer pg.Close()

	stats, err := pg.Import(ctx, snap)
	if err != nil {
		return err
	}
	logger.Info("migration complete", "users", stats.Users, "memories", stats.Memories, "images", stats.Images)
	fmt.Fprintf(out, "inserted %d users, %d memories, %d images (existing ids skipped)\n",
		stats.Users, stats.Memories, stats.Images)
	return nil
}

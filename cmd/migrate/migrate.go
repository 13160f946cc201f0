package migrate

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/errors"
)

// Command creates the migrate command copying the SQLite history into MySQL.
func Command(settings *conf.Settings, _ *buildinfo.Context) *cobra.Command {
	var (
		sqlitePath string
		skipVerify bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy records from SQLite to MySQL",
		Long: `Copy every record from a SQLite database into the MySQL database configured
under output.mysql. IDs and timestamps are kept. Records already present in
MySQL are skipped, so the command can be run again after an interruption.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sqlitePath == "" {
				sqlitePath = settings.Output.SQLite.Path
			}

			src, dst, err := openStores(settings, sqlitePath)
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()
			defer func() { _ = dst.Close() }()

			stats, err := datastore.Migrate(src, dst)
			stats.Print(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			if skipVerify {
				return nil
			}
			if err := datastore.Verify(src, dst); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Verification passed")
			return err
		},
	}

	cmd.Flags().StringVar(&sqlitePath, "sqlite-path", "", "Source SQLite database, defaults to output.sqlite.path")
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "Skip post-migration verification")

	return cmd
}

// openStores opens the SQLite source at path and the configured MySQL target.
func openStores(settings *conf.Settings, path string) (src, dst datastore.Interface, err error) {
	if path == "" {
		return nil, nil, errors.Newf("no SQLite source, set --sqlite-path or output.sqlite.path").
			Component("migrate").
			Category(errors.CategoryConfiguration).
			Build()
	}

	srcSettings := &conf.Settings{}
	srcSettings.Output.SQLite = conf.SQLiteSettings{Enabled: true, Path: path}

	dstSettings := &conf.Settings{}
	dstSettings.Output.MySQL = settings.Output.MySQL
	dstSettings.Output.MySQL.Enabled = true

	if src, err = datastore.New(srcSettings, nil); err != nil {
		return nil, nil, err
	}
	if err = src.Open(); err != nil {
		return nil, nil, err
	}
	if dst, err = datastore.New(dstSettings, nil); err != nil {
		_ = src.Close()
		return nil, nil, err
	}
	if err = dst.Open(); err != nil {
		_ = src.Close()
		return nil, nil, err
	}
	return src, dst, nil
}

package record

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphakala/soilnet-go/internal/analysis"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/datastore"
)

// Command creates the record command with its locate, sync and delete
// subcommands.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Modify a saved classification",
	}

	cmd.AddCommand(
		locateCommand(settings, build),
		syncCommand(settings, build),
		deleteCommand(settings, build),
	)
	return cmd
}

func locateCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		lat, lon, accuracy float64
		at                 string
	)

	cmd := &cobra.Command{
		Use:   "locate <id>",
		Short: "Attach a GPS fix to a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := datastore.Location{Latitude: lat, Longitude: lon, Accuracy: accuracy}
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --time %q, want RFC 3339: %w", at, err)
				}
				loc.Timestamp = ts
			}
			if err := loc.Validate(); err != nil {
				return err
			}

			return analysis.Run(cmd.Context(), settings, build, func(rt *analysis.Runtime) error {
				rec, err := rt.Service.AttachLocation(args[0], loc)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s located at %.6f,%.6f\n", rec.ID, lat, lon)
				return err
			})
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 0, "GPS accuracy in meters")
	cmd.Flags().StringVar(&at, "time", "", "Time of the fix in RFC 3339, defaults to now")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")

	return cmd
}

func syncCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var remoteURL string

	cmd := &cobra.Command{
		Use:   "sync <id>",
		Short: "Mark a record as uploaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remoteURL != "" {
				u, err := url.Parse(remoteURL)
				if err != nil || !u.IsAbs() {
					return fmt.Errorf("--url must be an absolute URL, got %q", remoteURL)
				}
			}

			return analysis.Run(cmd.Context(), settings, build, func(rt *analysis.Runtime) error {
				rec, err := rt.Service.MarkSynced(args[0], remoteURL)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s marked synced\n", rec.ID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&remoteURL, "url", "", "Remote URL of the uploaded image")

	return cmd
}

func deleteCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete records and their uploaded images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.Run(cmd.Context(), settings, build, func(rt *analysis.Runtime) error {
				for _, id := range args {
					if err := rt.Service.Delete(id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", id)
				}
				return nil
			})
		},
	}
}

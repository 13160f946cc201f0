package classify

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/soilnet-go/internal/analysis"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/datastore"
)

type flags struct {
	userID      string
	latitude    float64
	longitude   float64
	accuracy    float64
	jsonOutput  bool
	concurrency int
	allowPoor   bool
}

// Command creates the classify command for image files and directories.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "classify <image|directory>...",
		Short: "Classify soil photos",
		Long:  "Classify one or more soil photos and save the results. Directories are searched recursively for JPEG, PNG and WebP files.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := locationFromFlags(cmd, &f)
			if err != nil {
				return err
			}
			if f.allowPoor {
				settings.Pipeline.AllowPoorQuality = true
			}

			return analysis.Run(cmd.Context(), settings, build, func(rt *analysis.Runtime) error {
				results, err := analysis.ClassifyFiles(cmd.Context(), rt, args, analysis.ClassifyOptions{
					UserID:      f.userID,
					Location:    loc,
					Concurrency: f.concurrency,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if f.jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					if err := enc.Encode(results); err != nil {
						return err
					}
				} else if err := analysis.WriteReport(out, results); err != nil {
					return err
				}

				if failed := analysis.Failed(results); failed > 0 {
					return fmt.Errorf("%d of %d images could not be classified", failed, len(results))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&f.userID, "user", "", "User ID stored with each record")
	cmd.Flags().Float64Var(&f.latitude, "lat", 0, "Latitude of the sample site")
	cmd.Flags().Float64Var(&f.longitude, "lon", 0, "Longitude of the sample site")
	cmd.Flags().Float64Var(&f.accuracy, "accuracy", 0, "GPS accuracy in meters")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print results as JSON")
	cmd.Flags().IntVarP(&f.concurrency, "jobs", "j", 0, "Images classified in parallel, 0 uses all CPUs")
	cmd.Flags().BoolVar(&f.allowPoor, "allow-poor-quality", false, "Classify images that fail the quality check")
	cmd.MarkFlagsRequiredTogether("lat", "lon")

	return cmd
}

func locationFromFlags(cmd *cobra.Command, f *flags) (*datastore.Location, error) {
	if !cmd.Flags().Changed("lat") {
		if cmd.Flags().Changed("accuracy") {
			return nil, fmt.Errorf("--accuracy requires --lat and --lon")
		}
		return nil, nil
	}
	loc := &datastore.Location{Latitude: f.latitude, Longitude: f.longitude, Accuracy: f.accuracy}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return loc, nil
}

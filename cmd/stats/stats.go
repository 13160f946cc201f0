package stats

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphakala/soilnet-go/internal/analysis"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/soil"
)

// Command creates the stats command summarizing saved records.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show scan statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.Run(cmd.Context(), settings, build, func(rt *analysis.Runtime) error {
				st, err := rt.Service.Statistics(time.Now())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(st)
				}

				mostCommon := "-"
				if st.MostCommonSoilType != nil {
					mostCommon = st.MostCommonSoilType.DisplayName()
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "Total scans:\t%d\n", st.TotalScans)
				fmt.Fprintf(tw, "Last 7 days:\t%d\n", st.ScansThisWeek)
				fmt.Fprintf(tw, "Last 30 days:\t%d\n", st.ScansThisMonth)
				fmt.Fprintf(tw, "Most common soil:\t%s\n", mostCommon)
				fmt.Fprintf(tw, "Average confidence:\t%d%%\n", soil.Percentage(st.AverageConfidence))
				fmt.Fprintf(tw, "Streak:\t%d days\n", st.StreakDays)
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print statistics as JSON")

	return cmd
}

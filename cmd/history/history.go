package history

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tphakala/soilnet-go/internal/analysis"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/conf"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/export"
	"github.com/tphakala/soilnet-go/internal/soil"
)

// Command creates the history command listing saved records, newest first.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		label        string
		limit        int
		unsyncedOnly bool
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved classifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var want *soil.Type
			if label != "" {
				t, err := soil.ParseType(label)
				if err != nil {
					return err
				}
				want = &t
			}

			return analysis.Run(cmd.Context(), settings, build, func(rt *analysis.Runtime) error {
				records, err := rt.Service.History()
				if err != nil {
					return err
				}

				var selected []datastore.Record
				for i := range records {
					r := &records[i]
					if want != nil && r.Label != *want {
						continue
					}
					if unsyncedOnly && r.Synced {
						continue
					}
					selected = append(selected, *r)
					if limit > 0 && len(selected) == limit {
						break
					}
				}

				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(export.FromRecords(selected))
				}
				return writeTable(cmd, selected, rt.Settings.Stats.Location())
			})
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Only show this soil type")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records, 0 for all")
	cmd.Flags().BoolVar(&unsyncedOnly, "unsynced", false, "Only show records not yet uploaded")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")

	return cmd
}

func writeTable(cmd *cobra.Command, records []datastore.Record, loc *time.Location) error {
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "no records")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSOIL\tCONFIDENCE\tLOCATION\tSYNCED")
	for i := range records {
		r := &records[i]
		where := "-"
		if r.Latitude != nil && r.Longitude != nil {
			where = fmt.Sprintf("%.5f,%.5f", *r.Latitude, *r.Longitude)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t%t\n",
			r.ID, r.Timestamp.In(loc).Format("2006-01-02 15:04"), r.Label.DisplayName(),
			soil.Percentage(r.Confidence), where, r.Synced)
	}
	return tw.Flush()
}

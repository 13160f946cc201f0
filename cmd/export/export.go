package export

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tphakala/soilnet-go/internal/analysis"
	"github.com/tphakala/soilnet-go/internal/buildinfo"
	"github.com/tphakala/soilnet-go/internal/conf"
	soilexport "github.com/tphakala/soilnet-go/internal/export"
)

// Command creates the export command writing every record to a file or stdout.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export saved classifications as CSV, JSON or YAML",
		Long:  "Export every saved record. Without --output the data goes to stdout. The format defaults to the output file extension, then to CSV.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := resolveFormat(format, output)
			if err != nil {
				return err
			}

			return analysis.Run(cmd.Context(), settings, build, func(rt *analysis.Runtime) error {
				rows, err := rt.Service.ExportRows()
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					return soilexport.Write(cmd.OutOrStdout(), rows, f)
				}
				if err := soilexport.WriteFile(afero.NewOsFs(), output, rows, f); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", len(rows), output)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: csv, json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, - or empty for stdout")

	return cmd
}

func resolveFormat(format, output string) (soilexport.Format, error) {
	if format != "" {
		return soilexport.ParseFormat(format)
	}
	if output != "" && output != "-" && filepath.Ext(output) != "" {
		return soilexport.FormatForPath(output)
	}
	return soilexport.FormatCSV, nil
}

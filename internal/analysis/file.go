package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/soilnet-go/internal/classifier"
	"github.com/tphakala/soilnet-go/internal/datastore"
	"github.com/tphakala/soilnet-go/internal/errors"
	"github.com/tphakala/soilnet-go/internal/export"
	"github.com/tphakala/soilnet-go/internal/imaging"
	"github.com/tphakala/soilnet-go/internal/logger"
	"github.com/tphakala/soilnet-go/internal/scan"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// FileResult is the outcome of scanning one image file.
type FileResult struct {
	Path   string
	Result *scan.Result
	Err    error
}

// MarshalJSON flattens the record into an export row and adds the error text.
func (f FileResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Path           string                  `json:"path"`
		Record         *export.Row             `json:"record,omitempty"`
		Classification *classifier.Result      `json:"classification,omitempty"`
		Quality        *imaging.QualityVerdict `json:"quality,omitempty"`
		Error          string                  `json:"error,omitempty"`
	}{Path: f.Path}
	if f.Result != nil {
		row := export.FromRecord(&f.Result.Record)
		out.Record = &row
		out.Classification = f.Result.Classification
		out.Quality = &f.Result.Quality
	}
	if f.Err != nil {
		out.Error = f.Err.Error()
	}
	return json.Marshal(out)
}

// ClassifyOptions applies to every file of one ClassifyFiles call.
type ClassifyOptions struct {
	UserID      string
	Location    *datastore.Location
	Concurrency int // 0 uses the CPU count
}

// ClassifyFiles scans every image named by paths, expanding directories
// recursively. It waits for the model first. Per-file failures are
// reported in the results; the returned error covers only failures that
// stop the whole run. Results keep the order of the expanded paths.
func ClassifyFiles(ctx context.Context, rt *Runtime, paths []string, opts ClassifyOptions) ([]FileResult, error) {
	files, err := collectImages(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Newf("no images found in %s", strings.Join(paths, ", ")).
			Component("analysis").
			Category(errors.CategoryImageInput).
			Build()
	}

	if err := rt.Service.WaitForModel(ctx); err != nil {
		return nil, err
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	results := make([]FileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = FileResult{Path: path, Err: err}
				return nil
			}
			res, err := rt.Service.Scan(gctx, scan.Request{
				ImagePath: path,
				UserID:    opts.UserID,
				Location:  opts.Location,
			})
			results[i] = FileResult{Path: path, Result: res, Err: err}
			if err != nil {
				GetLogger().Warn("scan failed", logger.String("path", path), logger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

// collectImages expands directories and keeps files as given. Duplicates
// are dropped.
func collectImages(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.New(err).
				Component("analysis").
				Category(errors.CategoryFileIO).
				FileContext(p, 0).
				Build()
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isImageFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.New(err).
				Component("analysis").
				Category(errors.CategoryFileIO).
				Context("directory", p).
				Build()
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func isImageFile(path string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(path)))
}

// Failed counts results with an error.
func Failed(results []FileResult) int {
	n := 0
	for i := range results {
		if results[i].Err != nil {
			n++
		}
	}
	return n
}

// WriteReport prints one line per file as an aligned table.
func WriteReport(w io.Writer, results []FileResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSOIL\tCONFIDENCE\tLEVEL\tQUALITY\tID")
	for i := range results {
		r := &results[i]
		name := filepath.Base(r.Path)
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\terror: %v\n", name, r.Err)
			continue
		}
		c := r.Result.Classification
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%.0f\t%s\n",
			name, c.Primary.DisplayName(), c.Percentage(), c.Level.DisplayName(), r.Result.Quality.Score, r.Result.Record.ID)
	}
	return tw.Flush()
}

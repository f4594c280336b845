// Command finish batch-finishes product photos: refines the segmentation
// edge, tone-corrects, centers the subject on the listing canvas, and adds
// a drop shadow. Outputs one PNG per input plus an optional JSON report.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frgeek-official/fr-online-product-studio/internal/pipeline"
	"github.com/frgeek-official/fr-online-product-studio/internal/raster"
	"github.com/frgeek-official/fr-online-product-studio/internal/tone"
	"github.com/frgeek-official/fr-online-product-studio/internal/version"
	"github.com/frgeek-official/fr-online-product-studio/pkg/colorutil"
)

// maxWorkers caps the pool; finishing is memory-heavy and more workers than
// this just thrash the allocator.
const maxWorkers = 8

func main() {
	inPath := flag.String("in", "", "Input image file or directory")
	maskPath := flag.String("mask", "", "Mask file or directory (default: input alpha channel)")
	outDir := flag.String("out", "", "Output directory for finished PNGs")
	modelPath := flag.String("model", "", "Tone model artifact (JSON)")
	workers := flag.Int("workers", defaultWorkers(), "Concurrent finishing runs")
	reportPath := flag.String("report", "", "Write a JSON batch report to this path")
	bg := flag.String("bg", "white", "Canvas background: white, transparent, or #rrggbb")
	noShadow := flag.Bool("no-shadow", false, "Skip shadow synthesis")
	noTone := flag.Bool("no-tone", false, "Skip tone correction")
	verbose := flag.Bool("v", false, "Verbose (debug) logging")
	flag.Parse()

	fmt.Printf("finish %s\n", version.String())

	if *inPath == "" || *outDir == "" {
		fmt.Println("Usage: finish -in <file|dir> -out <dir> [-mask <file|dir>] [-model <json>]")
		fmt.Println("              [-workers N] [-report <json>] [-bg white|transparent|#rrggbb]")
		fmt.Println("              [-no-shadow] [-no-tone] [-v]")
		os.Exit(1)
	}

	logger := initLogger(*verbose)

	background, err := parseBackground(*bg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	inputs, err := discoverInputs(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list inputs: %v\n", err)
		os.Exit(1)
	}

	var model tone.Model
	if *modelPath != "" {
		model, err = tone.LoadModel(*modelPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load tone model: %v\n", err)
			os.Exit(1)
		}
		logger.WithField("model_version", model.Version()).Info("Tone model loaded")
	} else if !*noTone {
		logger.Warn("No tone model configured, every run will degrade to neutral parameters")
	}

	cfg := pipeline.DefaultConfig().WithBackground(background)
	if *noShadow {
		cfg = cfg.WithoutShadow()
	}
	if *noTone {
		cfg = cfg.WithoutToneCorrection()
	}

	pipe, err := pipeline.New(cfg, model, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	modelVersion := ""
	if model != nil {
		modelVersion = model.Version()
	}
	report := pipeline.NewReport(version.Version, modelVersion)

	n := *workers
	if n < 1 {
		n = 1
	}
	if n > maxWorkers {
		n = maxWorkers
	}
	fmt.Printf("Finishing %d files with %d workers\n\n", len(inputs), n)

	start := time.Now()
	ctx := context.Background()

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				report.Add(finishOne(ctx, pipe, file, *maskPath, *outDir, logger))
			}
		}()
	}
	for _, file := range inputs {
		jobs <- file
	}
	close(jobs)
	wg.Wait()

	fmt.Printf("%-36s %-10s %8s  %s\n", "FILE", "STATUS", "TIME", "DETAIL")
	for _, item := range report.Items {
		detail := ""
		switch item.Status {
		case pipeline.StatusDegraded:
			detail = item.DegradedReason
		case pipeline.StatusFailed:
			detail = item.Error
		}
		fmt.Printf("%-36s %-10s %7dms  %s\n", item.File, item.Status, item.DurationMS, detail)
	}

	total, succeeded, degraded, failed := report.Counts()
	fmt.Printf("\nFinished %d files in %s: %d ok (%d degraded), %d failed\n",
		total, time.Since(start).Round(time.Millisecond), succeeded, degraded, failed)

	if *reportPath != "" {
		if err := report.Save(*reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Report written to %s\n", *reportPath)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// finishOne runs the pipeline for a single file and returns its report entry.
func finishOne(ctx context.Context, pipe *pipeline.Pipeline, file, maskPath, outDir string, logger *logrus.Logger) pipeline.ReportItem {
	start := time.Now()
	name := filepath.Base(file)

	img, err := raster.Load(file)
	if err != nil {
		logger.WithField("file", name).WithError(err).Error("Load failed")
		return pipeline.FailedItem(name, time.Since(start), err)
	}

	mask, err := resolveMask(img, file, maskPath)
	if err != nil {
		logger.WithField("file", name).WithError(err).Error("Mask lookup failed")
		return pipeline.FailedItem(name, time.Since(start), err)
	}

	res, err := pipe.Run(ctx, img, mask, name)
	if err != nil {
		return pipeline.FailedItem(name, time.Since(start), err)
	}

	outFile := filepath.Join(outDir, strings.TrimSuffix(name, filepath.Ext(name))+".png")
	if err := raster.SavePNG(outFile, res.Image); err != nil {
		logger.WithField("file", name).WithError(err).Error("Save failed")
		return pipeline.FailedItem(name, time.Since(start), err)
	}

	res.Duration = time.Since(start)
	return pipeline.ItemFor(name, outFile, res)
}

// resolveMask finds the subject mask for file: an explicit mask file, a file
// with a matching base name inside a mask directory, or the input's own
// alpha channel when no mask source is configured.
func resolveMask(img *image.NRGBA, file, maskPath string) (*image.Gray, error) {
	if maskPath == "" {
		return raster.AlphaFromImage(img), nil
	}

	info, err := os.Stat(maskPath)
	if err != nil {
		return nil, fmt.Errorf("mask path: %w", err)
	}
	if !info.IsDir() {
		return raster.LoadMask(maskPath)
	}

	exact := filepath.Join(maskPath, filepath.Base(file))
	if _, err := os.Stat(exact); err == nil {
		return raster.LoadMask(exact)
	}
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	for _, ext := range raster.SupportedFormats() {
		candidate := filepath.Join(maskPath, base+ext)
		if _, err := os.Stat(candidate); err == nil {
			return raster.LoadMask(candidate)
		}
	}
	return nil, fmt.Errorf("no mask found for %s in %s", filepath.Base(file), maskPath)
}

// discoverInputs expands a file-or-directory path into the list of images
// to finish.
func discoverInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !raster.IsSupportedFormat(path) {
			return nil, fmt.Errorf("unsupported image format: %s", path)
		}
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !raster.IsSupportedFormat(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no supported images in %s", path)
	}
	return files, nil
}

// parseBackground maps the -bg flag to a canvas color.
func parseBackground(s string) (color.NRGBA, error) {
	switch strings.ToLower(s) {
	case "white":
		return colorutil.White, nil
	case "transparent":
		return colorutil.Transparent, nil
	}
	if strings.HasPrefix(s, "#") && len(s) == 7 {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err == nil {
			return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
		}
	}
	return color.NRGBA{}, fmt.Errorf("invalid background %q (want white, transparent, or #rrggbb)", s)
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > maxWorkers {
		n = maxWorkers
	}
	return n
}

// initLogger configures structured logging: JSON for batch pipelines,
// human-readable text in verbose mode. Logs go to stderr so stdout stays
// a clean summary.
func initLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

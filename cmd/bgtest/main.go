// Command bgtest classifies the background of product photos. Photos that
// already sit on a clean white studio background skip re-segmentation
// upstream, so this tool is used to audit the classifier's verdicts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/frgeek-official/fr-online-product-studio/internal/classify"
	"github.com/frgeek-official/fr-online-product-studio/internal/raster"
	"github.com/frgeek-official/fr-online-product-studio/internal/version"
)

// verdict is one -json output row.
type verdict struct {
	File string `json:"file"`
	classify.Classification
}

func main() {
	inPath := flag.String("in", "", "Photo file or directory")
	jsonOut := flag.Bool("json", false, "Print verdicts as JSON")
	flag.Parse()

	header := fmt.Sprintf("bgtest %s", version.String())
	if *jsonOut {
		fmt.Fprintln(os.Stderr, header)
	} else {
		fmt.Println(header)
	}

	if *inPath == "" {
		fmt.Println("Usage: bgtest -in <file|dir> [-json]")
		os.Exit(1)
	}

	inputs, err := discoverInputs(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list inputs: %v\n", err)
		os.Exit(1)
	}

	opts := classify.DefaultOptions()
	verdicts := make([]verdict, 0, len(inputs))
	failed := 0

	if !*jsonOut {
		fmt.Printf("\n%-36s %-6s %8s %10s %10s\n", "FILE", "KIND", "WHITE", "DOMINANT", "CONFIDENCE")
	}

	for _, file := range inputs {
		img, err := raster.Load(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(file), err)
			failed++
			continue
		}

		c := classify.Classify(img, opts)
		verdicts = append(verdicts, verdict{File: filepath.Base(file), Classification: c})

		if !*jsonOut {
			fmt.Printf("%-36s %-6s %7.1f%% %10s %10.2f\n",
				filepath.Base(file), c.Kind, c.WhiteRatio*100, c.Dominant, c.Confidence)
		}
	}

	if *jsonOut {
		data, err := json.MarshalIndent(verdicts, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to serialize: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	} else {
		white := 0
		for _, v := range verdicts {
			if v.Kind == classify.BackgroundWhite {
				white++
			}
		}
		fmt.Printf("\nClassified %d photos: %d white, %d other\n", len(verdicts), white, len(verdicts)-white)
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// discoverInputs expands a file-or-directory path into the list of photos
// to classify.
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

// Command tonetest inspects the tone pipeline for one photo: it refines the
// mask edge the way a finishing run would, prints the extracted feature
// vector and the predicted parameters, and can write the corrected image.
// Used to tune and sanity-check tone model artifacts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/frgeek-official/fr-online-product-studio/internal/features"
	"github.com/frgeek-official/fr-online-product-studio/internal/raster"
	"github.com/frgeek-official/fr-online-product-studio/internal/refine"
	"github.com/frgeek-official/fr-online-product-studio/internal/tone"
	"github.com/frgeek-official/fr-online-product-studio/internal/version"
)

// inspection is the -json output document.
type inspection struct {
	PipelineVersion string          `json:"pipeline_version"`
	Image           string          `json:"image"`
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	SubjectPixels   int             `json:"subject_pixels"`
	Features        features.Vector `json:"features"`
	Parameters      tone.Parameters `json:"parameters"`
	Source          string          `json:"parameter_source"`
	ModelVersion    string          `json:"model_version,omitempty"`
	DegradedReason  string          `json:"degraded_reason,omitempty"`
}

func main() {
	imagePath := flag.String("image", "", "Product photo to inspect")
	maskPath := flag.String("mask", "", "Mask file (default: image alpha channel)")
	modelPath := flag.String("model", "", "Tone model artifact (JSON)")
	applyPath := flag.String("apply", "", "Write the tone-corrected image to this PNG")
	jsonOut := flag.Bool("json", false, "Print the inspection as JSON")
	flag.Parse()

	header := fmt.Sprintf("tonetest %s", version.String())
	if *jsonOut {
		fmt.Fprintln(os.Stderr, header)
	} else {
		fmt.Println(header)
	}

	if *imagePath == "" {
		fmt.Println("Usage: tonetest -image <file> [-mask <file>] [-model <json>] [-apply out.png] [-json]")
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	img, err := raster.Load(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load image: %v\n", err)
		os.Exit(1)
	}

	var mask *image.Gray
	maskSource := "alpha channel"
	if *maskPath != "" {
		mask, err = raster.LoadMask(*maskPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load mask: %v\n", err)
			os.Exit(1)
		}
		maskSource = *maskPath
	} else {
		mask = raster.AlphaFromImage(img)
	}

	var model tone.Model
	if *modelPath != "" {
		model, err = tone.LoadModel(*modelPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load tone model: %v\n", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()

	refined, refinedMask, err := refine.Refine(ctx, img, mask, refine.DefaultOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Edge refinement failed: %v\n", err)
		os.Exit(1)
	}

	vec, err := features.Extract(refined, refinedMask, features.DefaultOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Feature extraction failed: %v\n", err)
		os.Exit(1)
	}

	predictor := tone.NewPredictor(model, tone.DefaultBounds(), tone.DefaultPredictTimeout, logger)
	params, perr := predictor.Predict(ctx, vec)

	out := inspection{
		PipelineVersion: version.Version,
		Image:           *imagePath,
		Width:           img.Bounds().Dx(),
		Height:          img.Bounds().Dy(),
		SubjectPixels:   raster.CountOpaque(refinedMask, 0),
		Features:        vec,
		Parameters:      params,
		Source:          "model",
		ModelVersion:    predictor.ModelVersion(),
	}
	if perr != nil {
		out.Source = "fallback"
		out.DegradedReason = perr.Error()
	}

	if *jsonOut {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to serialize: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	} else {
		printInspection(out, maskSource)
	}

	if *applyPath != "" {
		corrected, err := tone.Apply(ctx, refined, refinedMask, params, tone.DefaultApplyOptions())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Tone apply failed: %v\n", err)
			os.Exit(1)
		}
		if err := raster.SavePNG(*applyPath, corrected); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save: %v\n", err)
			os.Exit(1)
		}
		if !*jsonOut {
			fmt.Printf("\nCorrected image written to %s\n", *applyPath)
		}
	}
}

func printInspection(out inspection, maskSource string) {
	fmt.Printf("Image: %s (%dx%d)\n", out.Image, out.Width, out.Height)
	fmt.Printf("Mask: %s (%d subject pixels)\n", maskSource, out.SubjectPixels)

	fmt.Printf("\n%-18s %10s\n", "FEATURE", "VALUE")
	values := out.Features.Slice()
	for i, name := range features.Names {
		fmt.Printf("%-18s %10.3f\n", name, values[i])
	}

	switch {
	case out.Source == "model":
		fmt.Printf("\nPredicted parameters (model %s):\n", out.ModelVersion)
	case out.ModelVersion != "":
		fmt.Printf("\nNeutral fallback parameters (%s):\n", out.DegradedReason)
	default:
		fmt.Printf("\nNeutral parameters (no model configured):\n")
	}
	fmt.Printf("  brightness %+7.2f\n", out.Parameters.Brightness)
	fmt.Printf("  contrast   %7.3f\n", out.Parameters.Contrast)
	fmt.Printf("  gamma      %7.3f\n", out.Parameters.Gamma)
}

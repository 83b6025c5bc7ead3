/**
 * cccd-extract - one-shot CCCD extraction
 *
 * Runs the extraction pipeline on local card images and prints the result as
 * JSON. Configuration comes from the same environment variables as the worker;
 * flags override the per-request values.
 *
 * Usage:
 *   cccd-extract -variant modern_back -front front.jpg -back back.jpg
 *   cccd-extract -variant legacy_front -front front.jpg -mode direct
 *
 * Exit status is 0 for qr_success, direct_text and region results, 2 for
 * qr_parse_error and failures, 1 for usage and setup errors.
 */

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/HenSanInDuty/ocr-cccd/internal/app"
	"github.com/HenSanInDuty/ocr-cccd/internal/card"
	"github.com/HenSanInDuty/ocr-cccd/internal/config"
	"github.com/HenSanInDuty/ocr-cccd/internal/imagesource"
	"github.com/HenSanInDuty/ocr-cccd/internal/logging"
	"github.com/HenSanInDuty/ocr-cccd/internal/processor"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		frontPath   = flag.String("front", "", "path to the front image")
		backPath    = flag.String("back", "", "path to the back image")
		variant     = flag.String("variant", string(card.ModernBack), "card variant: legacy_front or modern_back")
		mode        = flag.String("mode", "", "fallback mode: direct or region (default from FALLBACK_MODE)")
		detectorURL = flag.String("detector-url", "", "region detector base URL (overrides DETECTOR_URL)")
		overlayDir  = flag.String("overlay-dir", "", "write direct-mode debug overlays here")
		retry       = flag.Bool("retry-decode-errors", false, "keep trying larger scales after a QR decode error")
		pretty      = flag.Bool("pretty", true, "indent JSON output")
	)
	flag.Parse()

	if err := godotenv.Load(".env.cccd"); err == nil {
		log.Printf("Loaded .env.cccd")
	}

	if *detectorURL != "" {
		os.Setenv("DETECTOR_URL", *detectorURL)
	}
	if *mode != "" {
		// DETECTOR_URL is only required for region mode.
		os.Setenv("FALLBACK_MODE", *mode)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	if *overlayDir != "" {
		cfg.DebugOverlayDir = *overlayDir
	}
	if *retry {
		cfg.QRRetryOnDecodeError = true
	}

	req, err := buildRequest(*variant, *mode, *frontPath, *backPath)
	if err != nil {
		log.Printf("Invalid request: %v", err)
		return 1
	}

	components, err := app.Build(cfg, nil)
	if err != nil {
		log.Printf("Failed to initialize extraction pipeline: %v", err)
		return 1
	}
	defer components.Close()
	req.Detector = components.RegionDetector()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ProcessingTimeout)
	defer cancel()

	result := components.Pipeline.Run(ctx, req)

	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		log.Printf("Failed to write result: %v", err)
		return 1
	}
	return exitCode(result)
}

func buildRequest(variant, mode, frontPath, backPath string) (*processor.Request, error) {
	v, err := card.ParseCardVariant(variant)
	if err != nil {
		return nil, err
	}
	req := &processor.Request{JobID: "cli", Variant: v}
	if mode != "" {
		if req.Mode, err = card.ParseFallbackMode(mode); err != nil {
			return nil, err
		}
	}
	if req.Front, err = readSide("front", frontPath); err != nil {
		return nil, err
	}
	if req.Back, err = readSide("back", backPath); err != nil {
		return nil, err
	}
	return req, nil
}

func readSide(side, path string) (image.Image, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s image: %w", side, err)
	}
	return imagesource.DecodeSide(side, data)
}

func exitCode(result card.ExtractionResult) int {
	switch result.Kind {
	case card.KindQRSuccess, card.KindDirectText, card.KindRegion:
		return 0
	default:
		return 2
	}
}

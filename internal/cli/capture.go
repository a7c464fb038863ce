package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shotcraft/htmlshot"
)

var captureCmd = &cobra.Command{
	Use:   "capture [file]",
	Short: "Render HTML and screenshot an element",
	Long: `Renders an HTML document in a fresh browser tab, waits for the page
to become visually stable (fonts, stylesheets, images loaded and the DOM
quiet), and captures a screenshot of the element matching the selector.

The HTML is read from the given file, or from stdin when the file is "-"
or omitted.

Flags:
  --selector, -s    CSS selector of the element to capture (default "body")
  --output, -o      Save to specified path instead of the working directory
  --format          Image format: jpeg, png, or webp (default jpeg)
  --quality         JPEG/WebP quality 1-100 (default 90, ignored for png)
  --full-page       Capture beyond the viewport bounds
  --omit-background Transparent background (png only)
  --width           Viewport width in CSS pixels
  --height          Viewport height in CSS pixels
  --scale           Device scale factor (2.0 doubles output density)
  --headed          Run the browser with a visible window
  --chrome          Explicit browser executable path
  --timeout         Overall capture deadline (default 60s)

File location:
  Default: ./htmlshot-YY-MM-DD-HHMMSS.{ext}
  Custom:  Specified path with --output flag

Basic capture:
  htmlshot capture page.html                  # <body> as JPEG
  htmlshot capture page.html -s "#chart"      # One element
  cat page.html | htmlshot capture -s .card   # From stdin

Format control:
  htmlshot capture page.html --format png --omit-background
  htmlshot capture page.html --quality 95 -o out.jpg

High density output:
  htmlshot capture page.html --width 800 --height 600 --scale 2

Response:
  {"ok": true, "path": "htmlshot-26-08-29-143052.jpg"}

Error cases:
  - "element not found" - selector matched nothing
  - "content never stabilized" - page kept mutating past the deadline
  - "browser executable not found" - install a Chromium-family browser
    or set HTMLSHOT_CHROME`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringP("selector", "s", "body", "CSS selector of the element to capture")
	captureCmd.Flags().StringP("output", "o", "", "Save to specified path")
	captureCmd.Flags().String("format", "jpeg", "Image format: jpeg, png, or webp")
	captureCmd.Flags().Int("quality", 0, "JPEG/WebP quality 1-100")
	captureCmd.Flags().Bool("full-page", false, "Capture beyond the viewport bounds")
	captureCmd.Flags().Bool("omit-background", false, "Transparent background (png only)")
	captureCmd.Flags().Int("width", 0, "Viewport width in CSS pixels")
	captureCmd.Flags().Int("height", 0, "Viewport height in CSS pixels")
	captureCmd.Flags().Float64("scale", 0, "Device scale factor")
	captureCmd.Flags().Bool("headed", false, "Run the browser with a visible window")
	captureCmd.Flags().String("chrome", "", "Explicit browser executable path")
	captureCmd.Flags().Duration("timeout", 60*time.Second, "Overall capture deadline")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	html, err := readInput(args)
	if err != nil {
		return outputError(err.Error())
	}
	if len(html) == 0 {
		return outputError("no HTML input")
	}

	opts, err := captureOptions(cmd)
	if err != nil {
		return outputError(err.Error())
	}

	selector, _ := cmd.Flags().GetString("selector")
	headed, _ := cmd.Flags().GetBool("headed")
	chromePath, _ := cmd.Flags().GetString("chrome")

	browser, err := htmlshot.Launch(ctx, htmlshot.Options{
		ExecPath: chromePath,
		Headless: !headed,
		Logger:   newLogger(),
	})
	if err != nil {
		return outputError(err.Error())
	}
	defer browser.Close()

	data, err := browser.CaptureHTMLWithOptions(ctx, string(html), selector, opts)
	if err != nil {
		return outputError(err.Error())
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return outputError(fmt.Sprintf("decode image data: %v", err))
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		outputPath = defaultOutputPath(opts.Format, time.Now())
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return outputError(fmt.Sprintf("failed to create directory: %v", err))
		}
	}
	if err := os.WriteFile(outputPath, raw, 0644); err != nil {
		return outputError(fmt.Sprintf("failed to write screenshot: %v", err))
	}

	if JSONOutput {
		return outputJSON(os.Stdout, map[string]any{
			"ok":   true,
			"path": outputPath,
		})
	}
	_, err = fmt.Fprintln(os.Stdout, outputPath)
	return err
}

// readInput reads the HTML document from the file argument, or stdin when
// the argument is "-" or absent.
func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(args[0])
}

// captureOptions translates the command's flags into capture options.
func captureOptions(cmd *cobra.Command) (htmlshot.CaptureOptions, error) {
	format, _ := cmd.Flags().GetString("format")
	quality, _ := cmd.Flags().GetInt("quality")
	fullPage, _ := cmd.Flags().GetBool("full-page")
	omitBackground, _ := cmd.Flags().GetBool("omit-background")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	scale, _ := cmd.Flags().GetFloat64("scale")

	imageFormat, err := parseFormat(format)
	if err != nil {
		return htmlshot.CaptureOptions{}, err
	}
	if quality < 0 || quality > 100 {
		return htmlshot.CaptureOptions{}, fmt.Errorf("quality %d out of range 1-100", quality)
	}

	opts := htmlshot.NewCaptureOptions().
		WithFormat(imageFormat).
		WithFullPage(fullPage).
		WithOmitBackground(omitBackground)
	if quality > 0 {
		opts = opts.WithQuality(quality)
	}

	if width > 0 || height > 0 || scale > 0 {
		if width <= 0 || height <= 0 {
			return htmlshot.CaptureOptions{}, fmt.Errorf("viewport needs both --width and --height")
		}
		viewport := htmlshot.NewViewport(width, height)
		if scale > 0 {
			viewport = viewport.WithScale(scale)
		}
		opts = opts.WithViewport(viewport)
	}
	return opts, nil
}

// parseFormat maps a flag value to an image format.
func parseFormat(s string) (htmlshot.ImageFormat, error) {
	switch s {
	case "jpeg", "jpg":
		return htmlshot.FormatJPEG, nil
	case "png":
		return htmlshot.FormatPNG, nil
	case "webp":
		return htmlshot.FormatWebP, nil
	default:
		return "", fmt.Errorf("unknown format %q (jpeg, png, or webp)", s)
	}
}

// defaultOutputPath generates a timestamped filename in the working
// directory: htmlshot-YY-MM-DD-HHMMSS.{ext}
func defaultOutputPath(format htmlshot.ImageFormat, now time.Time) string {
	ext := "jpg"
	switch format {
	case htmlshot.FormatPNG:
		ext = "png"
	case htmlshot.FormatWebP:
		ext = "webp"
	}
	return fmt.Sprintf("htmlshot-%s.%s", now.Format("06-01-02-150405"), ext)
}

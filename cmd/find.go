package cmd

import (
	"fmt"
	"image"
	"time"

	"github.com/spf13/cobra"

	"github.com/soocke/vision-bot-go/domain/bot"
	"github.com/soocke/vision-bot-go/domain/vision"
	"github.com/soocke/vision-bot-go/internal/output"
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Locate a needle image on a page, screen, or image file",
	Long: "Locate a needle image inside a haystack. The haystack is a live browser\n" +
		"page (--url, polls until found or timeout), the local screen (--desktop),\n" +
		"or a static image file (--haystack, single shot).",
	RunE: runFind,
}

func init() {
	rootCmd.AddCommand(findCmd)
	addSourceFlags(findCmd)
	findCmd.Flags().String("needle", "", "Path of the reference image to search for (required)")
	findCmd.Flags().String("haystack", "", "Search a static image file instead of a live capture")
	findCmd.Flags().Int("x", 0, "Search region left")
	findCmd.Flags().Int("y", 0, "Search region top")
	findCmd.Flags().Int("width", 0, "Search region width (0 = to the right edge)")
	findCmd.Flags().Int("height", 0, "Search region height (0 = to the bottom edge)")
	findCmd.Flags().Float64("confidence", 0, "Minimum NCC score (default from config, 0.9)")
	findCmd.Flags().Bool("grayscale", false, "Correlate on luminance only")
	findCmd.Flags().Int("timeout", 0, "Polling budget in ms (default from config, 10000)")
	findCmd.Flags().Bool("all", false, "Report every deduplicated match instead of the best one")
	findCmd.Flags().String("annotate", "", "Write a PNG with match rectangles drawn on the haystack")
	_ = findCmd.MarkFlagRequired("needle")
}

// findMatch is a compact match representation for output.
type findMatch struct {
	Left    int     `yaml:"left"     json:"left"`
	Top     int     `yaml:"top"      json:"top"`
	Width   int     `yaml:"width"    json:"width"`
	Height  int     `yaml:"height"   json:"height"`
	Score   float64 `yaml:"score"    json:"score"`
	CenterX int     `yaml:"center_x" json:"center_x"`
	CenterY int     `yaml:"center_y" json:"center_y"`
}

// findResult is the top-level output of the find command.
type findResult struct {
	OK        bool        `yaml:"ok"         json:"ok"`
	Action    string      `yaml:"action"     json:"action"`
	Needle    string      `yaml:"needle"     json:"needle"`
	Matches   []findMatch `yaml:"matches"    json:"matches"`
	Total     int         `yaml:"total"      json:"total"`
	ElapsedMs int64       `yaml:"elapsed_ms" json:"elapsed_ms"`
}

func runFind(cmd *cobra.Command, args []string) error {
	needlePath, _ := cmd.Flags().GetString("needle")
	haystackPath, _ := cmd.Flags().GetString("haystack")
	all, _ := cmd.Flags().GetBool("all")
	annotatePath, _ := cmd.Flags().GetString("annotate")
	opts := findOptions(cmd)

	start := time.Now()
	var matches []vision.Match
	var haystack image.Image
	var err error
	if haystackPath != "" {
		matches, haystack, err = findInFile(needlePath, haystackPath, opts, all)
	} else {
		matches, haystack, err = findLive(cmd, needlePath, opts, all, annotatePath != "")
	}
	if err != nil {
		return err
	}

	if annotatePath != "" && haystack != nil {
		if err := writeAnnotated(annotatePath, haystack, matches); err != nil {
			return err
		}
	}

	result := findResult{
		OK:        true,
		Action:    "find",
		Needle:    needlePath,
		Matches:   []findMatch{},
		ElapsedMs: time.Since(start).Milliseconds(),
	}
	for _, m := range matches {
		cx, cy := m.Center()
		result.Matches = append(result.Matches, findMatch{
			Left: m.Left, Top: m.Top, Width: m.Width, Height: m.Height,
			Score: m.Score, CenterX: cx, CenterY: cy,
		})
	}
	result.Total = len(result.Matches)
	return output.Print(result)
}

// findInFile runs a single-shot search against a static image.
func findInFile(needlePath, haystackPath string, opts bot.FindOptions, all bool) ([]vision.Match, image.Image, error) {
	needle, err := vision.LoadNeedle(needlePath)
	if err != nil {
		return nil, nil, err
	}
	haystack, err := vision.LoadNeedle(haystackPath)
	if err != nil {
		return nil, nil, err
	}
	vopts := vision.Options{
		Region:     opts.Region,
		Confidence: opts.Matching,
		Grayscale:  opts.Grayscale,
	}
	matches, err := vision.LocateAll(needle, haystack, vopts)
	if err != nil {
		return nil, nil, err
	}
	if all {
		return vision.Deduplicate(matches), haystack, nil
	}
	if len(matches) > 1 {
		matches = matches[:1]
	}
	return matches, haystack, nil
}

// findLive polls a browser or desktop capture until a hit or timeout.
func findLive(cmd *cobra.Command, needlePath string, opts bot.FindOptions, all, wantFrame bool) ([]vision.Match, image.Image, error) {
	ctx := cmd.Context()
	provider, cleanup, err := newProvider(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	defer cleanup()

	const label = "needle"
	b := bot.New(cfg, provider, logger)
	b.AddImage(label, needlePath)

	var matches []vision.Match
	if all {
		matches, err = b.FindAll(ctx, label, opts)
	} else {
		var m *vision.Match
		m, err = b.FindUntil(ctx, label, opts)
		if m != nil {
			matches = []vision.Match{*m}
		}
	}
	if err != nil {
		return nil, nil, err
	}

	var frame image.Image
	if wantFrame && len(matches) > 0 {
		// One more capture for the annotation overlay; the page may have
		// moved since the hit, which is acceptable for a debugging artifact.
		if img, err := provider.Capture(ctx, nil); err == nil {
			frame = img
		}
	}
	return matches, frame, nil
}

func findOptions(cmd *cobra.Command) bot.FindOptions {
	x, _ := cmd.Flags().GetInt("x")
	y, _ := cmd.Flags().GetInt("y")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	grayscale, _ := cmd.Flags().GetBool("grayscale")
	timeoutMs, _ := cmd.Flags().GetInt("timeout")

	opts := bot.FindOptions{
		Region:    vision.Region{Left: x, Top: y, Width: width, Height: height},
		Grayscale: grayscale,
	}
	if confidence > 0 {
		opts.Matching = confidence
	} else if cfg != nil {
		opts.Matching = cfg.Matching
	}
	if timeoutMs > 0 {
		opts.WaitingTime = time.Duration(timeoutMs) * time.Millisecond
	}
	return opts
}

func writeAnnotated(path string, haystack image.Image, matches []vision.Match) error {
	if err := saveAnnotated(path, haystack, matches); err != nil {
		return fmt.Errorf("annotate %s: %w", path, err)
	}
	return nil
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/soocke/vision-bot-go/domain/bot"
	"github.com/soocke/vision-bot-go/domain/vision"
	"github.com/soocke/vision-bot-go/internal/output"
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture a page or screen to a PNG file",
	RunE:  runScreenshot,
}

func init() {
	rootCmd.AddCommand(screenshotCmd)
	addSourceFlags(screenshotCmd)
	screenshotCmd.Flags().String("out", "", "Output PNG path (required)")
	screenshotCmd.Flags().Int("x", 0, "Crop region left")
	screenshotCmd.Flags().Int("y", 0, "Crop region top")
	screenshotCmd.Flags().Int("width", 0, "Crop region width (0 = full width)")
	screenshotCmd.Flags().Int("height", 0, "Crop region height (0 = full height)")
	_ = screenshotCmd.MarkFlagRequired("out")
}

// screenshotResult is the top-level output of the screenshot command.
type screenshotResult struct {
	OK     bool   `yaml:"ok"     json:"ok"`
	Action string `yaml:"action" json:"action"`
	Path   string `yaml:"path"   json:"path"`
	Width  int    `yaml:"width"  json:"width"`
	Height int    `yaml:"height" json:"height"`
}

func runScreenshot(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	x, _ := cmd.Flags().GetInt("x")
	y, _ := cmd.Flags().GetInt("y")
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")

	ctx := cmd.Context()
	provider, cleanup, err := newProvider(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	b := bot.New(cfg, provider, logger)
	var region *vision.Region
	if x != 0 || y != 0 || width != 0 || height != 0 {
		region = &vision.Region{Left: x, Top: y, Width: width, Height: height}
	}
	img, err := b.Screenshot(ctx, out, region)
	if err != nil {
		return err
	}

	return output.Print(screenshotResult{
		OK:     true,
		Action: "screenshot",
		Path:   out,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	})
}

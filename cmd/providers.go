package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soocke/vision-bot-go/domain/browser"
	"github.com/soocke/vision-bot-go/domain/capture"
)

// addSourceFlags registers the haystack source flags shared by find and
// screenshot.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "", "Start a browser and capture this page")
	cmd.Flags().Bool("desktop", false, "Capture the local screen")
}

// newProvider builds a capture provider from the source flags. The returned
// cleanup func tears down any browser session and must always be called.
func newProvider(ctx context.Context, cmd *cobra.Command) (capture.Provider, func(), error) {
	url, _ := cmd.Flags().GetString("url")
	desktop, _ := cmd.Flags().GetBool("desktop")

	switch {
	case url != "":
		session, err := browser.Start(ctx, browser.Options{
			Headless:    cfg.Headless,
			Width:       cfg.WindowWidth,
			Height:      cfg.WindowHeight,
			UserAgent:   cfg.UserAgent,
			DownloadDir: cfg.DownloadDir,
		}, logger)
		if err != nil {
			return nil, func() {}, err
		}
		if err := session.Navigate(ctx, url); err != nil {
			session.Close()
			return nil, func() {}, err
		}
		return capture.NewMeter(session, logger), session.Close, nil
	case desktop:
		return capture.NewMeter(capture.Desktop{}, logger), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("one of --url or --desktop is required")
	}
}

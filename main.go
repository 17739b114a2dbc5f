package main

import (
	"log/slog"

	"github.com/soocke/vision-bot-go/cmd"
)

func main() {
	cmd.Execute(func(debug bool) *slog.Logger {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		return NewLogger(level)
	})
}

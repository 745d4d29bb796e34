// Command orgtrends-viewer is the desktop front end: load or fetch post titles and chart the
// organizations they mention.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"yashubustudio/orgtrends/internal/app"
	"yashubustudio/orgtrends/internal/config"
	"yashubustudio/orgtrends/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Settings file (default ./"+config.DefaultFileName+")")
	flag.Parse()

	s, _, err := config.Load(config.LoadOptions{ConfigFile: *configPath})
	if err != nil {
		app.ShowFatalError(fmt.Errorf("load config: %w", err))
		os.Exit(1)
	}

	sink := app.NewLogSink(0)
	logger, closeLog, err := logging.New(s.Logging, io.MultiWriter(os.Stderr, sink))
	if err != nil {
		app.ShowFatalError(fmt.Errorf("init logging: %w", err))
		os.Exit(1)
	}
	defer closeLog()

	a, err := app.New(context.Background(), s, logger)
	if err != nil {
		app.ShowFatalError(fmt.Errorf("init pipeline: %w", err))
		return
	}
	defer a.Close()

	app.RunViewer(a, sink)
}

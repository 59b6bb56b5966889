package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dyike/ThesisGo/config"
	"github.com/dyike/ThesisGo/internal/display"
	"github.com/dyike/ThesisGo/pkg/app"
)

// Runs one analysis with the default configuration. The CLI lives in cmd/.
func main() {
	company := "Apple Inc."
	if len(os.Args) > 1 {
		company = os.Args[1]
	}

	engine, err := app.BuildEngine(*config.DefaultConfig())
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	report, stats := engine.Analyze(context.Background(), company, app.AnalyzeOptions{
		Observer: display.StageProgress(os.Stderr),
	})
	display.RenderReport(os.Stdout, report)
	fmt.Println()
	display.RenderProviders(os.Stdout, stats, -1)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/marketlake/internal/app"
	"github.com/yungbote/marketlake/internal/domain/pipeline"
	"github.com/yungbote/marketlake/internal/platform/shutdown"
)

func main() {
	once := flag.Bool("once", false, "run the daily graph once and exit")
	dayFlag := flag.String("day", "", "run date (YYYY-MM-DD, UTC); defaults to today")
	flag.Parse()

	var day time.Time
	if *once {
		d, err := pipeline.ParseDay(*dayFlag, func() time.Time { return time.Now().UTC() })
		if err != nil {
			fmt.Printf("invalid -day: %v\n", err)
			os.Exit(2)
		}
		day = d
	}

	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := shutdown.NotifyContext(context.Background())

	code := 0
	if *once {
		if err := a.RunOnce(ctx, day); err != nil {
			a.Log.Error("daily run failed", "day", pipeline.FormatDay(day), "error", err)
			code = 1
		}
	} else if err := a.Run(ctx); err != nil {
		a.Log.Error("server exited", "error", err)
		code = 1
	}
	stop()
	a.Close()
	os.Exit(code)
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/marketlake/internal/app"
	"github.com/yungbote/marketlake/internal/platform/shutdown"
)

func main() {
	j, err := app.NewJobRunner()
	if err != nil {
		fmt.Printf("failed to initialize job runner: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := shutdown.NotifyContext(context.Background())

	code := 0
	if err := j.Run(ctx); err != nil {
		j.Log.Error("job runner exited", "error", err)
		code = 1
	}
	stop()
	j.Close()
	os.Exit(code)
}

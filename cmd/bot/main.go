package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"remindbot/internal/app"
)

func main() {
	var (
		cfgPath string
		verbose bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.BoolVar(&verbose, "v", false, "force debug logging")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfgPath, verbose)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	runErr := a.Run(ctx)
	_ = a.Close()
	if runErr != nil {
		fmt.Println("fatal run:", runErr)
		os.Exit(1)
	}
}

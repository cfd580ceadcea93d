package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tphakala/dbstation/cmd"
	"github.com/tphakala/dbstation/internal/conf"
)

func main() {
	settings := &conf.Settings{}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"os"

	"github.com/scraper-bots/jobnet-az/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

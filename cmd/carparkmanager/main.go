// Package main is the entry point for the car park availability service.
package main

import (
	"os"

	"github.com/bher20/carparkmanager/cmd/carparkmanager/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

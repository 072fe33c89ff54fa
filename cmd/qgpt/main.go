// Package main is the entry point of the qgpt table retrieval pipeline.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/qgpt/internal/qgpt"
)

func main() {
	qgpt.NewApp().Run()
}

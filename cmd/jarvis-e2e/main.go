package main

import "github.com/zerg-ai/jarvis-e2e/internal/cli"

func main() {
	cli.Execute()
}

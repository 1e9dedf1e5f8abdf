package main

import (
	"github.com/JakeFAU/crawl-admission/cmd"
)

// main defers all execution to the cobra CLI.
func main() {
	cmd.Execute()
}

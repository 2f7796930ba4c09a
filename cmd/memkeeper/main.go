package main

import (
	"fmt"
	"os"

	"github.com/lazypower/memkeeper/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "memkeeper:", err)
		os.Exit(1)
	}
}

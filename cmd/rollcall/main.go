// Command rollcall records shared attendance sheets.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rollcall/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "rollcall:", err)
	}
	os.Exit(cli.GetExitCode(err))
}

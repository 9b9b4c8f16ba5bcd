// Command ledger refreshes exchange rates and prints multi-currency
// reports over the ledger tables in DATA_DIR.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&refreshCmd{}, "rates")
	commander.Register(&rateCmd{}, "rates")

	commander.Register(&standCmd{}, "reports")
	commander.Register(&evolutionCmd{}, "reports")
	commander.Register(&monthlyCmd{}, "reports")
	commander.Register(&summaryCmd{}, "reports")
	commander.Register(&checkCmd{}, "ledger")

	commander.Register(&serveCmd{}, "server")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

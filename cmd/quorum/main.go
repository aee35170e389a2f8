package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paxoslab/quorum/internal/driver"
)

var basePort int

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Interactive console for a single-decree Paxos cluster",
	Long: `quorum drops into a REPL that starts an in-process cluster of replicas
and drives it over the same TCP wire protocol any external client would use.

Commands:
  start <n>                 start an n-replica cluster, replacing any running one
  propose <replica> <value> send a value to a replica as a client proposal
  query <replica>           ask a replica what value, if any, it has chosen
  exit                      stop the cluster and quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer log.Sync()

		console := driver.NewConsole(basePort, log)
		return console.Run(os.Stdin, os.Stdout)
	},
}

func main() {
	rootCmd.Flags().IntVar(&basePort, "base-port", 12345, "replica N listens on 127.0.0.1:base-port+N")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

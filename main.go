package main

import (
	"os"

	"github.com/go-i2p/go-i2cpd/lib/config"
	"github.com/go-i2p/logger"
	"github.com/spf13/cobra"
)

var log = logger.GetGoI2PLogger()

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "go-i2cpd",
		Short:        "I2CP router front-end for local I2P client applications",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.InitConfig()
		},
	}
	root.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file (default $HOME/.go-i2cpd/config.yaml)")
	root.AddCommand(serveCommand(), configCommand(), addressBookCommand())
	return root
}

package main

import (
	"github.com/spf13/cobra"

	"avaneesh/prox1-go/pkg/prox1"
)

var configEffective bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print configuration as YAML",
	Long: `Print the default configuration as YAML, suitable as a starting point
for a config file. With --effective, print the configuration after the
config file and PROX1_ environment overrides are applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := prox1.DefaultConfig()
		if configEffective {
			c = *cfg
		}
		out, err := c.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configCmd.Flags().BoolVar(&configEffective, "effective", false, "print the loaded configuration")
}

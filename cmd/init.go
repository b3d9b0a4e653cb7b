package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	tt "github.com/dlinter/dlin/internal/types"
	"github.com/dlinter/dlin/lint"
)

// initCmd: dlin init
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new linter configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		path, err := initConfigurationFile(cfgFile)
		if err != nil {
			logger.Error("Error initializing config file", zap.Error(err))
			return
		}
		fmt.Printf("Configuration file created: %s\n", path)
	},
}

func initConfigurationFile(configurationPath string) (string, error) {
	if configurationPath == "" {
		configurationPath = lint.DefaultConfigPath
	}

	config := lint.DefaultConfig()
	// one entry as an example of the rule syntax
	config.Rules = map[string]tt.ConfigRule{
		"BP004": tt.RuleSeverity(tt.SeverityInfo),
	}
	return configurationPath, lint.WriteConfig(configurationPath, config)
}

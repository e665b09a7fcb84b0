package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/pipeconfig/internal/compiler"
	"github.com/lucasnoah/pipeconfig/internal/config"
)

var (
	configFile   string
	configFormat string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect pipeline configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [CONFIG]",
	Short: "Validate the pipeline configuration file",
	Long: `Validate checks the configuration the same way compile does, including
dependency cycles, without writing anything.`,
	Args: maxArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(args, configFile)
		if err != nil {
			return err
		}

		_, err = compiler.New(compiler.Options{ConfigPath: path, Logger: logger}).Compile(cfg)
		if err == nil {
			cmd.Println("Configuration is valid.")
			return nil
		}

		var errs config.ValidationErrors
		if errors.As(err, &errs) {
			cmd.Println("Validation errors:")
			for _, e := range errs {
				cmd.Printf("  - %s\n", e)
			}
		}
		return err
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show [CONFIG]",
	Short: "Show the resolved configuration with defaults merged",
	Args:  maxArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(args, configFile)
		if err != nil {
			return err
		}

		var data []byte
		switch configFormat {
		case "yaml":
			data, err = yaml.Marshal(cfg)
		case "json":
			data, err = json.MarshalIndent(cfg, "", "  ")
			data = append(data, '\n')
		default:
			return usageErrorf("unknown format %q: want yaml or json", configFormat)
		}
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}

		cmd.Print(string(data))
		return nil
	},
}

func init() {
	configCmd.PersistentFlags().StringVarP(&configFile, "file", "f", "", "path to pipeline config file")
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "output format: yaml or json")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}

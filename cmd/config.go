package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/vidgrab/internal/config"
	"github.com/tanq16/vidgrab/internal/output"
	"github.com/tanq16/vidgrab/internal/utils"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the settings file",
		// subcommands must work with a missing or broken file
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			utils.InitLogger(debug)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the settings file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cfgFile)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings with secrets masked",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			loaded, err := config.Load(cfgFile)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			loaded.YouTube.APIKey = mask(loaded.YouTube.APIKey)
			loaded.HTTP.ProxyPassword = mask(loaded.HTTP.ProxyPassword)
			data, err := yaml.Marshal(loaded)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			fmt.Print(string(data))
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default settings file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := os.Stat(cfgFile); err == nil && !force {
				output.PrintWarning(fmt.Sprintf("%s already exists, use --force to overwrite", cfgFile))
				return
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if err := config.Default().Save(cfgFile); err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			output.PrintSuccess("Wrote " + cfgFile)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func mask(secret string) string {
	if len(secret) <= 4 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return secret[:4] + "****"
}

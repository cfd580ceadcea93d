package config

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/dbstation/internal/conf"
)

// Command creates the command that prints the effective configuration with
// secrets redacted.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := settings.Redacted().YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

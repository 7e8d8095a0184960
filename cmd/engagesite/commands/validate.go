package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/engagesite/internal/content"
)

func newValidateCommand() *cobra.Command {
	var contentDir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config file and content data",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			fmt.Fprintln(out, "✓ config")

			if cmd.Flags().Changed("content") {
				cfg.Content.Dir = contentDir
			}
			store, err := content.NewStore(cfg.Content.Dir, zap.NewNop())
			if err != nil {
				return fmt.Errorf("invalid content: %w", err)
			}
			d := store.Data()
			fmt.Fprintf(out, "✓ content: %d features, %d showcase panels\n", len(d.Features), len(d.Panels))
			fmt.Fprintf(out, "  cms: %s\n", cfg.CMS.GetURL())
			return nil
		},
	}
	cmd.Flags().StringVar(&contentDir, "content", "", "Directory of content YAML overriding the embedded data")
	return cmd
}

package cli

import (
	"github.com/spf13/cobra"
)

var setupReset bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the scripture index schema",
	Long: `Creates the index with its analyzers, synonym groups, stopwords, and
field mappings. An existing index is left untouched unless --reset is given,
which destroys it first.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().BoolVar(&setupReset, "reset", false, "delete the existing index before creating it")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	if setupReset && engine.Exists() {
		if err := engine.DeleteIndex(); err != nil {
			return err
		}
		logger.Info("existing index deleted", "index", cfg.Index.Name)
	}

	created, err := engine.CreateIndex(defaultSchema())
	if err != nil {
		return err
	}
	if !created {
		cmd.Printf("index %q already exists; use --reset to recreate it\n", cfg.Index.Name)
		return nil
	}

	logger.Info("index ready", "index", cfg.Index.Name)
	cmd.Printf("index %q created\n", cfg.Index.Name)
	return nil
}

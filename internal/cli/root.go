package cli

import (
	"os"
	"strings"

	"github.com/kongfuworld/settlement/internal/config"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configDir string
	dbType    string
	dbPath    string
	verbose   bool
}

func (g *globalFlags) decorateConfig(cfg config.Config) config.Config {
	if dir := strings.TrimSpace(g.configDir); dir != "" {
		cfg.SettlementConfigDir = dir
	}
	if t := strings.TrimSpace(g.dbType); t != "" {
		cfg.DBType = t
	}
	if p := strings.TrimSpace(g.dbPath); p != "" {
		cfg.DBPath = p
	}
	return cfg
}

// NewRootCommand builds the settle command tree.
func NewRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "settle",
		Short:         "Monthly revenue settlement for authors and editors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configDir, "config-dir", "", "directory holding settlement.yml")
	root.PersistentFlags().StringVar(&g.dbType, "db-type", "", "override DATABASE_TYPE (postgres, mysql, sqlite)")
	root.PersistentFlags().StringVar(&g.dbPath, "db-path", "", "override DATABASE_PATH for sqlite")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "log dependency wiring")

	root.AddCommand(
		newRunCommand(g),
		newBackfillCommand(g),
		newImportCommand(g),
		newStatementCommand(g),
		newServeCommand(g),
	)
	return root
}

func defaultActor() string {
	for _, key := range []string{"SETTLEMENT_ACTOR", "USER"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return "cli"
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		root.PrintErrln("error:", err)
		return 1
	}
	return 0
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/onfile/internal/config"
)

// registerGlobalFlags adds the configuration and logging flags shared by
// both tools.
func registerGlobalFlags(cmd *cobra.Command, cfgFile *string) {
	pf := cmd.PersistentFlags()
	pf.StringVar(cfgFile, "config", "", "config file (default: .onfile.yaml)")
	pf.String("log-level", config.LogLevelInfo, "log level: debug, info, warn, error")
	pf.String("log-format", config.LogFormatText, "log format: text, json")
	pf.Bool("quiet", false, "suppress log output below error level")
	pf.Duration("debounce", config.DefaultDebounce, "quiet period before a file event is delivered")
}

package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"tripsync/config"
	"tripsync/logging"
	"tripsync/mq/mq"
)

var RootCmd = &cobra.Command{
	Use:   "tripsync",
	Short: "shared planner for a group trip",
	Long:  `tripsync keeps the itinerary, todos, shopping list, journal and member roster of a group trip in sync across every participant, plus a packing list that stays on this machine`,
}

func init() {
	RootCmd.AddCommand(serverCommand())
	RootCmd.AddCommand(migrateCommand())
	RootCmd.AddCommand(seedCommand())
}

// loadConfig reads the environment, applies the command's flag overrides
// and installs the process logger.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("dev") {
		cfg.IsDev, _ = flags.GetBool("dev")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetString("port")
	}
	if flags.Changed("store") {
		cfg.StoreMode, _ = flags.GetString("store")
	}
	if flags.Changed("mq") {
		mode, _ := flags.GetString("mq")
		cfg.MqMode = mq.Mode(mode)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(cfg.Log, nil)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

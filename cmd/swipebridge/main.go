package main

import (
	"os"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/config"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.ErrorWithCode(coded).Msg("swipebridge exited")
		} else {
			logger.Error().Err(err).Msg("swipebridge exited")
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "swipebridge",
		Short:         "Edge bridge for the touch-swipe sensor node",
		Long:          "Reads swipe frames from the sensor's serial link and either identifies the user or forwards the frames to an MQTT broker.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newModeCommand(config.ModeGateway,
		"Persist every frame to the CSV store and publish it to the broker"))
	cmd.AddCommand(newModeCommand(config.ModePredict,
		"Identify the user behind every frame with the trained model"))
	cmd.AddCommand(newJournalCommand())

	return cmd
}

func newModeCommand(mode config.Mode, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(mode),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), config.WithMode(mode))
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}
}

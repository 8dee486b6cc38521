package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/config"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/errors"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/journal"
	"github.com/cihanayindi/touchswipe-identifier-AIoT/internal/logger"
	"github.com/spf13/cobra"
)

const errJournalUnreadable = errors.ErrorCode("journal_unreadable")

func newJournalCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the most recent frame outcomes from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
				return err
			}

			rec, err := journal.Open(journal.Config{
				Enabled:   true,
				DBPath:    cfg.Journal.DBPath,
				BatchSize: cfg.Journal.BatchSize,
			}, logger.Default().With("journal"))
			if err != nil {
				return err
			}
			defer rec.Close()

			reader, ok := rec.(journal.Reader)
			if !ok {
				return errors.New().WithData(errJournalUnreadable, cfg.Journal.DBPath)
			}

			outcomes, err := reader.Recent(limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tMODE\tSEQ\tKIND\tLABEL\tERROR\tLINE")
			for _, o := range outcomes {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					o.At.Format(time.RFC3339), o.Mode, o.Seq, o.Kind, o.Label, o.ErrorCode, o.Line)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of outcomes to show")

	return cmd
}

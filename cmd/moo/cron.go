package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mooassistant/moo/internal/cron"
	"github.com/mooassistant/moo/internal/state"
)

func openCronStore() (*cron.Store, error) {
	paths, err := state.Resolve()
	if err != nil {
		return nil, err
	}
	return cron.NewStore(nil, paths.CronStorePath())
}

func newCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Inspect and edit the reminder store",
	}
	cmd.AddCommand(newCronListCmd(), newCronAddCmd(), newCronRemoveCmd())
	return cmd
}

func newCronListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCronStore()
			if err != nil {
				return err
			}
			jobs := store.LoadJobs()
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no reminders are stored")
				return nil
			}
			for _, j := range jobs {
				var when string
				switch j.Schedule.Kind {
				case cron.KindOneShot:
					when = "at " + time.UnixMilli(j.Schedule.AtMs).Local().Format(time.RFC3339)
					if j.AlreadySent() {
						when += " (sent)"
					}
				case cron.KindRecurring:
					when = "on " + strconv.Quote(j.Schedule.Expr)
					if j.Schedule.TZ != "" {
						when += " " + j.Schedule.TZ
					}
				}
				state := "enabled"
				if !j.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20q %s -> %s [%s]\n", j.ID, j.Name, when, j.JID, state)
				if j.LastError != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "    last error: %s\n", j.LastError)
				}
			}
			return nil
		},
	}
}

func newCronAddCmd() *cobra.Command {
	var (
		name    string
		message string
		jid     string
		atFlag  string
		expr    string
		tz      string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a reminder directly to the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (atFlag == "") == (expr == "") {
				return fmt.Errorf("specify exactly one of --at or --expr")
			}
			job := cron.Job{
				Name:        name,
				Enabled:     true,
				Message:     message,
				JID:         jid,
				CreatedAtMs: time.Now().UnixMilli(),
			}
			if atFlag != "" {
				at, err := time.Parse(time.RFC3339, atFlag)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				job.Schedule = cron.Schedule{Kind: cron.KindOneShot, AtMs: at.UnixMilli()}
			} else {
				if err := cron.ValidateExpr(expr); err != nil {
					return fmt.Errorf("invalid --expr: %w", err)
				}
				job.Schedule = cron.Schedule{Kind: cron.KindRecurring, Expr: expr, TZ: tz}
			}
			store, err := openCronStore()
			if err != nil {
				return err
			}
			added, err := store.AddJob(job)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "added", added.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "short label for the reminder")
	cmd.Flags().StringVar(&message, "message", "", "text the agent acts on when the job fires")
	cmd.Flags().StringVar(&jid, "jid", "", "chat the reminder is delivered to")
	cmd.Flags().StringVar(&atFlag, "at", "", "one-shot fire time, RFC3339")
	cmd.Flags().StringVar(&expr, "expr", "", "recurring cron expression")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone for --expr")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("message")
	_ = cmd.MarkFlagRequired("jid")
	return cmd
}

func newCronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a reminder by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openCronStore()
			if err != nil {
				return err
			}
			if err := store.RemoveJob(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed", args[0])
			return nil
		},
	}
}

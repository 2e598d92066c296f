package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gorelikserver/scada-sms/internal/alarm_service/app"
	"github.com/gorelikserver/scada-sms/internal/alarm_service/calendar"
	"github.com/gorelikserver/scada-sms/internal/alarm_service/domain"
	pgrepo "github.com/gorelikserver/scada-sms/internal/alarm_service/repository/postgres"
	"github.com/gorelikserver/scada-sms/internal/platform/config"
	"github.com/gorelikserver/scada-sms/internal/platform/database"
)

// parseRestrictedFlag maps "", "true" or "false" to an override.
func parseRestrictedFlag(s string) (*bool, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --restricted-day %q: %w", s, err)
	}
	return &v, nil
}

func printSummary(w io.Writer, s app.RunSummary) {
	fmt.Fprintf(w, "Processed %d alarm(s): %d completed, %d failed; %d deliveries, %d failed\n",
		s.JobsProcessed, s.JobsCompleted, s.JobsFailed, s.Deliveries, s.DeliveryFailures)
	if s.ClaimsLost > 0 {
		fmt.Fprintf(w, "%d alarm(s) were taken over by another dispatcher\n", s.ClaimsLost)
	}
}

func newSendAlarmCmd(configFile *string) *cobra.Command {
	var restricted string
	cmd := &cobra.Command{
		Use:   "send-alarm MESSAGE GROUP",
		Short: "Queue an alarm for a group and process the queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("group must be an integer, got %q", args[1])
			}
			override, err := parseRestrictedFlag(restricted)
			if err != nil {
				return err
			}

			e, err := newEnv(*configFile)
			if err != nil {
				return err
			}
			defer e.close()
			ctx := cmd.Context()

			q, err := e.openQueue()
			if err != nil {
				return err
			}
			id, err := q.Enqueue(ctx, args[0], groupID, override)
			if err != nil {
				return fmt.Errorf("queue alarm: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Alarm queued successfully. ID: %s\n", id)

			deps, err := e.buildDispatcher(ctx)
			if err != nil {
				return fmt.Errorf("alarm %s is queued but could not be processed now: %w", id, err)
			}
			summary, err := deps.dispatcher.RunOnce(ctx)
			printSummary(cmd.OutOrStdout(), summary)
			return err
		},
	}
	cmd.Flags().StringVar(&restricted, "restricted-day", "", "override the calendar: true or false")
	return cmd
}

func newProcessQueueCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "process-queue",
		Short: "Process every pending alarm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(*configFile)
			if err != nil {
				return err
			}
			defer e.close()

			deps, err := e.buildDispatcher(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := deps.dispatcher.RunOnce(cmd.Context())
			printSummary(cmd.OutOrStdout(), summary)
			return err
		},
	}
}

func newListAlarmsCmd(configFile *string) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list-alarms",
		Short: "List queued alarms, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := domain.JobStatus(strings.ToLower(status))
			if st != "" && !st.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			e, err := newEnv(*configFile)
			if err != nil {
				return err
			}
			defer e.close()

			q, err := e.openQueue()
			if err != nil {
				return err
			}
			jobs, err := q.List(cmd.Context(), st)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tGROUP\tCREATED\tDESCRIPTION\tERROR")
			for _, j := range jobs {
				errText := ""
				if j.Error != nil {
					errText = *j.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", j.ID, j.Status, j.GroupID,
					j.CreatedAt.Format(time.RFC3339), j.Description, errText)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status: pending, processing, completed or failed")
	return cmd
}

func newShowAlarmCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show-alarm ID",
		Short: "Print one alarm as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(*configFile)
			if err != nil {
				return err
			}
			defer e.close()

			q, err := e.openQueue()
			if err != nil {
				return err
			}
			job, err := q.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		},
	}
}

func newAuditCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "audit ID",
		Short: "Print the delivery audit trail of an alarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(*configFile)
			if err != nil {
				return err
			}
			defer e.close()

			pool, err := e.openPool(cmd.Context())
			if err != nil {
				return err
			}
			records, err := pgrepo.NewPgAuditRepository(pool, e.logger).ListByJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tRECIPIENT\tPHONE\tSTATUS\tGATEWAY\tRESPONSE")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", r.CreatedAt.Format(time.RFC3339), r.RecipientID,
					r.PhoneNumber, r.Status, r.GatewayStatus, oneLine(r.Response, 80))
			}
			return tw.Flush()
		},
	}
}

func oneLine(s string, n int) string {
	return domain.ShortText(strings.Join(strings.Fields(s), " "), n)
}

func newInitDBCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(*configFile)
			if err != nil {
				return err
			}
			defer e.close()

			pool, err := e.openPool(cmd.Context())
			if err != nil {
				return err
			}
			if err := database.Migrate(cmd.Context(), pool, e.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database initialization completed successfully")
			return nil
		},
	}
}

func newSeedCalendarCmd(configFile *string) *cobra.Command {
	var (
		years int
		from  string
	)
	cmd := &cobra.Command{
		Use:   "seed-calendar",
		Short: "Populate the date dimension table when it is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(*configFile)
			if err != nil {
				return err
			}
			defer e.close()

			if years == 0 {
				years = e.cfg.CalendarSeedYears
			}
			loc, err := calendar.LoadLocation(e.cfg.Calendar.Timezone)
			if err != nil {
				return err
			}
			start := time.Now().In(loc)
			if from != "" {
				start, err = time.ParseInLocation(time.DateOnly, from, loc)
				if err != nil {
					return fmt.Errorf("invalid --from %q: %w", from, err)
				}
			}

			pool, err := e.openPool(cmd.Context())
			if err != nil {
				return err
			}
			seeder := calendar.NewSeeder(pgrepo.NewPgCalendarRepository(pool, e.logger), e.logger)
			n, err := seeder.SeedIfEmpty(cmd.Context(), start, years)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Date dimension already populated, nothing to do")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d calendar days starting %s\n", n, domain.DateKey(start))
			return nil
		},
	}
	cmd.Flags().IntVar(&years, "years", 0, "years to generate (default CALENDAR_SEED_YEARS)")
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD (default today)")
	return cmd
}

func newIsRestrictedCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "is-restricted [DATE]",
		Short: "Report whether a date (default today) is a restricted day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(*configFile)
			if err != nil {
				return err
			}
			defer e.close()

			pool, err := e.openPool(cmd.Context())
			if err != nil {
				return err
			}
			oracle, err := e.newOracle(pool)
			if err != nil {
				return err
			}
			date := time.Now().In(oracle.Location())
			if len(args) == 1 {
				date, err = time.ParseInLocation(time.DateOnly, args[0], oracle.Location())
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", args[0], err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s restricted=%t\n", domain.DateKey(date), oracle.IsRestrictedDay(cmd.Context(), date))
			return nil
		},
	}
}

func newSetConfigCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-config KEY VALUE",
		Short: "Persist a configuration value",
		Long:  "Persist a configuration value. Known keys:\n  " + strings.Join(config.Keys(), "\n  "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := config.Set(*configFile, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s updated in %s\n", strings.ToUpper(args[0]), file)
			return nil
		},
	}
}

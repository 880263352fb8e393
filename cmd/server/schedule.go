package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/homesapp/rentals/internal/domain"
	"github.com/homesapp/rentals/internal/schedule"
	"github.com/homesapp/rentals/internal/types"
	"github.com/homesapp/rentals/internal/validate"
)

func scheduleCmd() *cobra.Command {
	var in schedule.Input
	var extras []string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Preview the lease term and recurring charges for contract terms",
		Example: `  server schedule --start 2025-03-15 --months 12 --rent 12000 \
    --extra internet:650:20 --extra water::10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, raw := range extras {
				c, err := parseExtra(raw)
				if err != nil {
					return err
				}
				in.ExtraCharges = append(in.ExtraCharges, c)
			}
			if err := validate.MustNew().Charges(in.ExtraCharges); err != nil {
				return err
			}
			res := schedule.Generate(in)
			if res.Empty() {
				return fmt.Errorf("invalid start date %q", in.StartDate)
			}

			fmt.Printf("Term: %s to %s (%d days)\n\n",
				types.FormatDate(res.StartDate), types.FormatDate(res.EndDate), res.TotalDays())
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVICE\tKIND\tAMOUNT\tDAY\tFREQUENCY")
			for _, e := range res.Entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.ServiceType, e.ChargeKind, e.Amount, e.DayOfMonth, e.Frequency)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&in.StartDate, "start", "", "contract start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&in.DurationMonths, "months", 0, "lease duration in months")
	cmd.Flags().StringVar(&in.EndDate, "end", "", "explicit end date, used when --months is not set")
	cmd.Flags().StringVar(&in.MonthlyRent, "rent", "", "monthly rent")
	cmd.Flags().StringVar(&in.Currency, "currency", "", "ISO currency code")
	cmd.Flags().StringArrayVar(&extras, "extra", nil, "extra charge as service:amount:day[:bimonthly]; empty amount means variable")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("rent")
	return cmd
}

// parseExtra reads service:amount:day[:frequency].
func parseExtra(raw string) (schedule.Charge, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return schedule.Charge{}, fmt.Errorf("extra %q: want service:amount:day[:frequency]", raw)
	}
	day, err := strconv.Atoi(parts[2])
	if err != nil {
		return schedule.Charge{}, fmt.Errorf("extra %q: day must be a number", raw)
	}
	c := schedule.Charge{
		ServiceType: domain.ServiceType(parts[0]),
		Amount:      parts[1],
		DayOfMonth:  day,
		ChargeKind:  domain.ChargeFixed,
	}
	if c.Amount == "" {
		c.ChargeKind = domain.ChargeVariable
	}
	if len(parts) == 4 {
		c.Frequency = domain.Frequency(parts[3])
	}
	return c, nil
}

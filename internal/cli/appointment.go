package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/hera/pkg/fields"
	"github.com/mesh-intelligence/hera/pkg/lifecycle"
	"github.com/mesh-intelligence/hera/pkg/salon"
)

func newAppointmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "appointment",
		Aliases: []string{"appt"},
		Short:   "Book appointments and move them through their workflow",
		Long: "Appointment states: " + strings.Join(lifecycle.Appointment.States(), ", ") + ".\n" +
			"transition follows the workflow; override sets any known state.",
	}
	cmd.AddCommand(newAppointmentBookCmd())
	cmd.AddCommand(newAppointmentMoveCmd("transition", "Move an appointment along the workflow", (*salon.Appointments).Move))
	cmd.AddCommand(newAppointmentMoveCmd("override", "Set any known state, bypassing the workflow", (*salon.Appointments).Override))
	cmd.AddCommand(newAppointmentCheckoutCmd())
	return cmd
}

func newAppointmentBookCmd() *cobra.Command {
	var (
		b        salon.Booking
		start    string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment in draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := fields.ParseDate(start)
			if err != nil {
				return usageErr("--start %q: %v", start, err)
			}
			b.StartAt = t
			if duration > 0 {
				b.EndAt = t.Add(duration)
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				appt, err := a.salon.Appointments.Book(ctx, b)
				if err != nil {
					return err
				}
				return printDone(cmd.OutOrStdout(), appt, "Booked %s: %s (%s)", appt.Name, appt.ID, appt.State)
			})
		},
	}
	cmd.Flags().StringVar(&b.Name, "name", "", "appointment name (default: derived from the start)")
	cmd.Flags().StringVar(&start, "start", "", "start time, ISO 8601 (required)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "length of the appointment")
	cmd.Flags().StringVar(&b.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&b.CustomerID, "customer", "", "customer id")
	cmd.Flags().StringVar(&b.StaffID, "staff", "", "staff id")
	cmd.Flags().StringSliceVar(&b.ServiceIDs, "service", nil, "service ids")
	cmd.Flags().StringVar(&b.BranchID, "branch", "", "branch id")
	cmd.MarkFlagRequired("start")
	return cmd
}

type appointmentMove func(*salon.Appointments, context.Context, string, string) (salon.Appointment, error)

func newAppointmentMoveCmd(use, short string, move appointmentMove) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id> <state>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				appt, err := move(a.salon.Appointments, ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printDone(cmd.OutOrStdout(), appt, "%s is %s", appt.ID, appt.State)
			})
		},
	}
}

func newAppointmentCheckoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <id>",
		Short: "Record the sale for an appointment's services and await payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				t, appt, err := a.salon.Appointments.Checkout(ctx, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if flags.jsonMode {
					return printJSON(w, map[string]any{"appointment": appt, "transaction": t})
				}
				okColor.Fprintf(w, "%s is %s\n", appt.ID, appt.State)
				fmt.Fprintln(w)
				return printTransaction(w, t)
			})
		},
	}
}

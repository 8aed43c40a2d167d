package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"landsale/models"
	"landsale/services"
	"landsale/storage"
)

// report prints a lifecycle outcome and turns a refusal into a command error.
func report(out io.Writer, res services.Result) error {
	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Fprintln(out, res.Message)
	return nil
}

func parseID(kind, arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", kind, arg)
	}
	return id, nil
}

func parseIDs(kind string, args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, arg := range args {
		id, err := parseID(kind, arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func applicationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "application",
		Short: "List and decide buyer applications",
	}
	cmd.AddCommand(applicationListCmd(), applicationDecideCmd())
	return cmd
}

func applicationListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch models.ApplicationStatus(status) {
			case "", models.ApplicationPending, models.ApplicationApproved, models.ApplicationRejected:
			default:
				return fmt.Errorf("unknown application status %q", status)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			apps, err := storage.New(a.store).ListApplications(ctx, models.ApplicationStatus(status))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(apps) == 0 {
				fmt.Fprintln(out, "no applications")
				return nil
			}
			for _, app := range apps {
				fmt.Fprintf(out, "%s  %-8s  land %s  client %s  %d lot(s)  appointment %s\n",
					app.ID, app.Status, app.LandID, app.ClientID, len(app.LotIDs),
					app.AppointmentDate.Format(time.DateTime))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only list applications in this status")
	return cmd
}

func applicationDecideCmd() *cobra.Command {
	var clientName, note string
	cmd := &cobra.Command{
		Use:   "decide <application-id> <approved|rejected>",
		Short: "Approve an application, reserving its lots, or reject it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("application", args[0])
			if err != nil {
				return err
			}
			decision, err := models.ParseApplicationDecision(args[1], clientName, note)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.lifecycle.DecideApplication(ctx, id, decision)
			if res.Reservation != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "reservation %s\n", res.Reservation.ID)
			}
			return report(cmd.OutOrStdout(), res.Result)
		},
	}
	cmd.Flags().StringVar(&clientName, "client-name", "", "name recorded on the reservation (defaults to the client's)")
	cmd.Flags().StringVar(&note, "note", "", "note kept with the decision")
	return cmd
}

func reservationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reservation",
		Short: "Close pending reservations",
	}
	cmd.AddCommand(reservationDecideCmd())
	return cmd
}

func reservationDecideCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "decide <reservation-id> <cancellation|no_show>",
		Short: "Cancel a reservation or mark it no-show, releasing its lots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("reservation", args[0])
			if err != nil {
				return err
			}
			outcome, err := models.ParseReservationOutcome(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return report(cmd.OutOrStdout(), a.lifecycle.DecideReservation(ctx, id, outcome, notes).Result)
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "reason kept on the reservation")
	return cmd
}

func contractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Convert reservations into contracts",
	}
	cmd.AddCommand(contractFinalizeCmd())
	return cmd
}

func contractFinalizeCmd() *cobra.Command {
	var clientArg, term string
	var agentArgs []string
	cmd := &cobra.Command{
		Use:   "finalize <application-id>",
		Short: "Sell the lots of an approved application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := parseID("application", args[0])
			if err != nil {
				return err
			}
			clientID, err := parseID("client", clientArg)
			if err != nil {
				return err
			}
			agentIDs, err := parseIDs("agent", agentArgs)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.lifecycle.FinalizeContract(ctx, services.ContractRequest{
				ApplicationID: appID,
				ClientID:      clientID,
				Term:          term,
				AgentIDs:      agentIDs,
			})
			if res.Contract != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "contract %s\n", res.Contract.ID)
			}
			return report(cmd.OutOrStdout(), res.Result)
		},
	}
	cmd.Flags().StringVar(&clientArg, "client", "", "client id, must match the application")
	cmd.Flags().StringVar(&term, "term", "", "payment term, e.g. cash or 60 months")
	cmd.Flags().StringSliceVar(&agentArgs, "agent", nil, "agent id on the contract; repeat for several (defaults to the application's)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("term")
	return cmd
}

func activityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activity <land|application|reservation|contract> <id>",
		Short: "Show the activity trail of one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity := args[0]
			switch entity {
			case "land", "application", "reservation", "contract":
			default:
				return fmt.Errorf("unknown entity %q", entity)
			}
			id, err := parseID(entity, args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := storage.New(a.store).ListActivity(ctx, entity, id.String())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				line := e.CreatedAt.Format(time.DateTime) + "  " + e.Action
				if e.Message != "" {
					line += "  " + e.Message
				}
				fmt.Fprintln(out, strings.TrimSpace(line))
			}
			return nil
		},
	}
}

func documentsFetchCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "fetch <contract-id>",
		Short: "Download the stored document of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("contract", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := a.docs.Open(ctx, id)
			if err != nil {
				return err
			}
			defer rc.Close()

			if outPath == "" {
				outPath = id.String() + ".xlsx"
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			n, err := io.Copy(f, rc)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", outPath, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (defaults to <contract-id>.xlsx)")
	return cmd
}

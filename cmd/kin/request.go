package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProposeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "propose <requester> <relation> <target>",
		Short: "Ask target to confirm that requester is relation of target",
		Long: `Creates a pending relationship request. Nothing is written to the graph
until the target accepts. Persons may be given by name or ID.

Examples:
  kin propose Ahmed father Amina
  kin propose Fatima wife Ahmed
  kin propose "Omar Said" brother-in-law Karim`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				result, err := d.Relations.HandlePropose(ctx, args[0], args[1], args[2])
				if err != nil {
					return fmt.Errorf("proposing relationship: %w", err)
				}
				if jsonOutput {
					return printJSON(result)
				}
				fmt.Printf("Request %s: %s is %s of %s (pending)\n",
					result.Request.ID, args[0], label(result.Request.Type), args[2])
				printWarnings(result.Warnings)
				return nil
			})
		},
	}
}

func newRequestsCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "requests <person>",
		Short: "List requests sent or received by a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				infos, err := d.Relations.HandleRequests(ctx, args[0], status)
				if err != nil {
					return fmt.Errorf("listing requests: %w", err)
				}
				if jsonOutput {
					return printJSON(infos)
				}
				if len(infos) == 0 {
					fmt.Printf("No %s requests for %s\n", status, args[0])
					return nil
				}
				for _, info := range infos {
					direction := "out"
					if info.Incoming {
						direction = "in "
					}
					fmt.Printf("%s  [%s] %s is %s of %s (%s)\n",
						info.Request.ID, direction,
						personName(info.Requester), label(info.Request.Type), personName(info.Target),
						info.Request.Status)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "pending", "Filter by status (pending, accepted, declined, cancelled, all)")

	return cmd
}

func newAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <request-id> <actor>",
		Short: "Accept a request as its target",
		Long:  "Writes the edge and its mirror, then derives the relationships it implies.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				result, err := d.Relations.HandleAccept(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("accepting request: %w", err)
				}
				if jsonOutput {
					return printJSON(result)
				}
				fmt.Printf("Accepted: %s\n", result.Request.ID)
				switch {
				case result.Deferred:
					fmt.Println("  Deduction queued")
				case result.Deduction != nil:
					fmt.Printf("  Derived %d relationships", result.Deduction.Written)
					if result.Deduction.Failed > 0 {
						fmt.Printf(", %d failed", result.Deduction.Failed)
					}
					fmt.Println()
				}
				return nil
			})
		},
	}
}

func newDeclineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decline <request-id> <actor>",
		Short: "Decline a request as its target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				req, err := d.Relations.HandleDecline(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("declining request: %w", err)
				}
				if jsonOutput {
					return printJSON(req)
				}
				fmt.Printf("Declined: %s\n", req.ID)
				return nil
			})
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <request-id> <actor>",
		Short: "Cancel a request as its requester",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				req, err := d.Relations.HandleCancel(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("cancelling request: %w", err)
				}
				if jsonOutput {
					return printJSON(req)
				}
				fmt.Printf("Cancelled: %s\n", req.ID)
				return nil
			})
		},
	}
}

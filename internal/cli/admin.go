package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"unibro/pkg/domain"
	"unibro/pkg/resourceclient"
)

func newAdminCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Moderate uploaded resources",
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List resources awaiting moderation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := rt.app.Resources.ListPending(cmd.Context())
			if err != nil {
				return err
			}
			return rt.emit(cmd, items, func(w io.Writer) { printResources(w, items) })
		},
	}

	approve := &cobra.Command{
		Use:   "approve ID",
		Short: "Approve a pending resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rt.app.Resources.Approve(cmd.Context(), domain.ID(args[0]))
			if err != nil {
				return err
			}
			return rt.emit(cmd, r, func(w io.Writer) { fmt.Fprintf(w, "Approved %s\n", r.ID) })
		},
	}

	var reason string
	reject := &cobra.Command{
		Use:   "reject ID",
		Short: "Reject a pending resource with a reason",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rt.app.Resources.Reject(cmd.Context(), domain.ID(args[0]), reason)
			if err != nil {
				return err
			}
			return rt.emit(cmd, r, func(w io.Writer) {
				fmt.Fprintf(w, "Rejected %s: %s\n", r.ID, r.RejectionReason)
			})
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "reason shown to the uploader (required)")

	var status string
	all := &cobra.Command{
		Use:   "all",
		Short: "Show the moderation dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				board resourceclient.Dashboard
				queue []domain.Resource
			)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				var err error
				board, err = rt.app.Resources.ListAll(ctx, domain.Status(status))
				return err
			})
			g.Go(func() error {
				var err error
				queue, err = rt.app.Resources.ListPending(ctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}
			out := struct {
				Stats     domain.ModerationStats `json:"stats"`
				Queue     int                    `json:"queue"`
				Resources []domain.Resource      `json:"resources"`
			}{board.Stats, len(queue), board.Resources}
			return rt.emit(cmd, out, func(w io.Writer) {
				s := board.Stats
				fmt.Fprintf(w, "Total %d  Pending %d  Approved %d  Rejected %d\n", s.Total, s.Pending, s.Approved, s.Rejected)
				fmt.Fprintf(w, "Awaiting review: %d\n\n", len(queue))
				printResources(w, board.Resources)
			})
		},
	}
	all.Flags().StringVar(&status, "status", "", "pending, approved or rejected")

	cmd.AddCommand(pending, approve, reject, all)
	return cmd
}

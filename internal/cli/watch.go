package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"unibro/pkg/notify"
)

func newWatchCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print session changes, including those made by other processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			events := make(chan notify.Event, 16)
			unsubscribe := rt.app.Notifier.Subscribe(func(ev notify.Event) {
				select {
				case events <- ev:
				default:
				}
			})
			defer unsubscribe()

			g, ctx := errgroup.WithContext(cmd.Context())
			if err := rt.app.Start(ctx); err != nil {
				return err
			}
			rt.println(cmd, "Watching session changes (Ctrl-C to stop)")
			g.Go(func() error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case ev := <-events:
						rt.println(cmd, "%s %s", ev.At.Format(time.TimeOnly), describe(ctx, rt, ev))
					}
				}
			})
			return g.Wait()
		},
	}
}

func describe(ctx context.Context, rt *runtime, ev notify.Event) string {
	if ev.Remote {
		if u := rt.app.Session.StoredUser(ctx); u != nil {
			return fmt.Sprintf("session changed elsewhere: logged in as %s", u.Email)
		}
		return "session changed elsewhere: logged out"
	}
	if ev.User != nil {
		return fmt.Sprintf("%s: %s", ev.Kind, ev.User.Email)
	}
	return string(ev.Kind)
}

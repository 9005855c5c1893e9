package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"unibro/pkg/apierr"
	"unibro/pkg/authclient"
	"unibro/pkg/domain"
	"unibro/pkg/session"
)

func newRegisterCommand(rt *runtime) *cobra.Command {
	var in authclient.RegisterInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := rt.secret(cmd, in.Password, "Password: ")
			if err != nil {
				return err
			}
			in.Password = pw
			u, err := rt.app.Auth.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			return rt.emit(cmd, u, func(w io.Writer) {
				fmt.Fprintln(w, "Account created. Check your email to verify your address.")
				printUser(w, u)
			})
		},
	}
	cmd.Flags().StringVar(&in.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (prompted when empty)")
	return cmd
}

func newLoginCommand(rt *runtime) *cobra.Command {
	var in authclient.LoginInput
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := rt.secret(cmd, in.Password, "Password: ")
			if err != nil {
				return err
			}
			in.Password = pw
			u, err := rt.app.Auth.Login(cmd.Context(), in)
			if err != nil {
				return err
			}
			return rt.emit(cmd, u, func(w io.Writer) {
				fmt.Fprintf(w, "Logged in as %s\n", u.Email)
			})
		},
	}
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (prompted when empty)")
	cmd.Flags().BoolVar(&in.RememberMe, "remember", false, "ask the backend for a long-lived session")
	return cmd
}

func newLogoutCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			rt.println(cmd, "Logged out")
			return nil
		},
	}
}

type whoami struct {
	User      *domain.User `json:"user"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
}

func newWhoamiCommand(rt *runtime) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !rt.app.Session.IsAuthenticated(ctx) {
				return apierr.AuthRequired("Not logged in")
			}
			if refresh {
				if res := rt.app.Auth.RefreshProfile(ctx); !res.OK() {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: profile refresh failed: %v\n", res.Err)
				}
			}
			out := whoami{User: rt.app.Session.StoredUser(ctx)}
			if claims, err := session.TokenClaims(rt.app.Session.StoredToken(ctx)); err == nil && !claims.ExpiresAt.IsZero() {
				exp := claims.ExpiresAt
				out.ExpiresAt = &exp
			}
			return rt.emit(cmd, out, func(w io.Writer) {
				if out.User != nil {
					printUser(w, *out.User)
				}
				if out.ExpiresAt != nil {
					fmt.Fprintf(w, "  session expires: %s\n", out.ExpiresAt.Local().Format(time.RFC1123))
				}
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-read the profile from the backend first")
	return cmd
}

func newOAuthCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Sign in with an external identity provider",
	}
	var timeout time.Duration
	google := &cobra.Command{
		Use:   "google",
		Short: "Sign in with Google through the browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := rt.app.Config().OAuthCallbackAddr
			rt.println(cmd, "Open this URL in your browser to continue:\n  %s", rt.app.Auth.GoogleAuthURL())
			rt.println(cmd, "Waiting for the callback on http://%s/auth/callback ...", addr)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			u, err := rt.app.Auth.WaitForCallback(ctx, addr, "")
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return apierr.Validation("Timed out waiting for Google sign-in")
				}
				return err
			}
			return rt.emit(cmd, u, func(w io.Writer) {
				fmt.Fprintf(w, "Logged in as %s\n", u.Email)
			})
		},
	}
	google.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the browser")
	cmd.AddCommand(google)
	return cmd
}

func newPasswordCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Reset or change your password",
	}

	forgot := &cobra.Command{
		Use:   "forgot EMAIL",
		Short: "Email a password reset link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := rt.app.Auth.ForgotPassword(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rt.println(cmd, "%s", orDefault(msg, "If the address is registered, a reset link is on its way."))
			return nil
		},
	}

	var newPassword string
	reset := &cobra.Command{
		Use:   "reset TOKEN",
		Short: "Set a new password with the token from the reset link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := rt.secret(cmd, newPassword, "New password: ")
			if err != nil {
				return err
			}
			msg, err := rt.app.Auth.ResetPassword(cmd.Context(), args[0], pw)
			if err != nil {
				return err
			}
			rt.println(cmd, "%s", orDefault(msg, "Password updated. You can log in now."))
			return nil
		},
	}
	reset.Flags().StringVar(&newPassword, "password", "", "new password (prompted when empty)")

	var current, next string
	change := &cobra.Command{
		Use:   "change",
		Short: "Change the password of the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cur, err := rt.secret(cmd, current, "Current password: ")
			if err != nil {
				return err
			}
			nxt, err := rt.secret(cmd, next, "New password: ")
			if err != nil {
				return err
			}
			msg, err := rt.app.Auth.ChangePassword(cmd.Context(), cur, nxt)
			if err != nil {
				return err
			}
			rt.println(cmd, "%s", orDefault(msg, "Password changed"))
			return nil
		},
	}
	change.Flags().StringVar(&current, "current", "", "current password (prompted when empty)")
	change.Flags().StringVar(&next, "new", "", "new password (prompted when empty)")

	cmd.AddCommand(forgot, reset, change)
	return cmd
}

func newVerifyCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Email verification",
	}
	resend := &cobra.Command{
		Use:   "resend",
		Short: "Send a new verification email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := rt.app.Auth.ResendVerificationEmail(cmd.Context())
			if err != nil {
				return err
			}
			rt.println(cmd, "%s", orDefault(msg, "Verification email sent"))
			return nil
		},
	}
	confirm := &cobra.Command{
		Use:   "confirm TOKEN",
		Short: "Confirm your address with the token from the email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := rt.app.Auth.VerifyEmail(cmd.Context(), args[0])
			if err != nil {
				if apierr.IsExpired(err) {
					fmt.Fprintln(cmd.ErrOrStderr(), "This link has expired. Run `unibro verify resend` to get a new one.")
				}
				return err
			}
			rt.println(cmd, "%s", orDefault(msg, "Email verified"))
			return nil
		},
	}
	cmd.AddCommand(resend, confirm)
	return cmd
}

func newProfileCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "View or edit your profile",
	}
	var in authclient.ProfileInput
	update := &cobra.Command{
		Use:   "update",
		Short: "Update your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := rt.app.Auth.UpdateProfile(cmd.Context(), in)
			if err != nil {
				return err
			}
			return rt.emit(cmd, u, func(w io.Writer) { printUser(w, u) })
		},
	}
	update.Flags().StringVar(&in.FullName, "name", "", "full name")

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Re-read your profile from the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := rt.app.Auth.RefreshProfile(cmd.Context())
			if !res.OK() {
				return res.Err
			}
			if res.Value == nil {
				return apierr.AuthRequired("Not logged in")
			}
			u := *res.Value
			return rt.emit(cmd, u, func(w io.Writer) { printUser(w, u) })
		},
	}
	cmd.AddCommand(update, refresh)
	return cmd
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

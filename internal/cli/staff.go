package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"unibro/pkg/domain"
	"unibro/pkg/staffclient"
	"unibro/pkg/storage"
)

func newStaffCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Faculty directory",
	}

	var department string
	list := &cobra.Command{
		Use:   "list",
		Short: "List staff members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := rt.app.Staff.List(cmd.Context(), department)
			if err != nil {
				return err
			}
			return rt.emit(cmd, items, func(w io.Writer) { printStaff(w, items) })
		},
	}
	list.Flags().StringVar(&department, "department", "", "only this department")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show one staff member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rt.app.Staff.Get(cmd.Context(), domain.ID(args[0]))
			if err != nil {
				return err
			}
			return rt.emit(cmd, s, func(w io.Writer) {
				fmt.Fprintf(w, "%s, %s (%s)\n", s.Name, s.Designation, s.Department)
				fmt.Fprintf(w, "  email: %s  phone: %s  office: %s\n", s.Email, s.Phone, s.Office)
				if s.Bio != "" {
					fmt.Fprintf(w, "  %s\n", s.Bio)
				}
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a staff member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.app.Staff.Delete(cmd.Context(), domain.ID(args[0])); err != nil {
				return err
			}
			rt.println(cmd, "Removed %s", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, show, newStaffSaveCommand(rt, "add"), newStaffSaveCommand(rt, "update"), remove)
	return cmd
}

// newStaffSaveCommand builds "add" or "update ID". --photo uploads a local
// image to the staff-profiles folder first.
func newStaffSaveCommand(rt *runtime, verb string) *cobra.Command {
	var in staffclient.Input
	var photo string
	use, short, args := "add", "Add a staff member", cobra.NoArgs
	if verb == "update" {
		use, short, args = "update ID", "Replace a staff member's record", cobra.ExactArgs(1)
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if photo != "" {
				bucket, err := rt.app.Blob()
				if err != nil {
					return err
				}
				file, closer, err := storage.Open(photo)
				if err != nil {
					return err
				}
				defer closer.Close()
				up, err := bucket.Upload(ctx, file, storage.FolderStaffProfiles)
				if err != nil {
					return fmt.Errorf("upload profile image: %w", err)
				}
				in.ProfileImage = up.URL
			}
			var (
				s   domain.Staff
				err error
			)
			if verb == "update" {
				s, err = rt.app.Staff.Update(ctx, domain.ID(args[0]), in)
			} else {
				s, err = rt.app.Staff.Create(ctx, in)
			}
			if err != nil {
				return err
			}
			return rt.emit(cmd, s, func(w io.Writer) { fmt.Fprintf(w, "Saved %s (%s)\n", s.Name, s.ID) })
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "name")
	cmd.Flags().StringVar(&in.Designation, "designation", "", "designation")
	cmd.Flags().StringVar(&in.Department, "department", "", "department")
	cmd.Flags().StringVar(&in.Email, "email", "", "email")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&in.Office, "office", "", "office")
	cmd.Flags().StringVar(&in.ProfileImage, "image-url", "", "profile image URL")
	cmd.Flags().StringVar(&photo, "photo", "", "local profile image to upload")
	cmd.Flags().StringVar(&in.Bio, "bio", "", "short bio")
	return cmd
}

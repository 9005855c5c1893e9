package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"unibro/pkg/domain"
	"unibro/pkg/resourceclient"
	"unibro/pkg/storage"
	"unibro/pkg/workflow"
)

func newResourcesCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resources",
		Aliases: []string{"r"},
		Short:   "Browse, upload and manage resources",
	}
	cmd.AddCommand(
		newResourcesListCommand(rt),
		newResourcesMineCommand(rt),
		newResourcesShowCommand(rt),
		newResourcesUploadCommand(rt),
		newResourcesDeleteCommand(rt),
		newResourcesViewCommand(rt),
		newResourcesDownloadCommand(rt),
	)
	return cmd
}

func newResourcesListCommand(rt *runtime) *cobra.Command {
	var f resourceclient.Filters
	var resourceType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List approved resources grouped by year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.ResourceType = domain.ResourceType(resourceType)
			groups, err := rt.app.Resources.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			return rt.emit(cmd, groups, func(w io.Writer) {
				if len(groups) == 0 {
					fmt.Fprintln(w, "No resources found")
					return
				}
				for _, g := range groups {
					fmt.Fprintf(w, "== %s ==\n", g.Year)
					printResources(w, g.Resources)
				}
			})
		},
	}
	cmd.Flags().StringVar(&resourceType, "type", "", "resource type, e.g. \"Past Papers\"")
	cmd.Flags().StringVar(&f.Department, "department", "", "department")
	cmd.Flags().StringVar(&f.Search, "search", "", "search text")
	cmd.Flags().StringVar(&f.Year, "year", "", "year")
	return cmd
}

func newResourcesMineCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List your uploads by moderation status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := rt.app.Resources.ListMine(cmd.Context())
			if err != nil {
				return err
			}
			return rt.emit(cmd, g, func(w io.Writer) {
				fmt.Fprintf(w, "Pending (%d)\n", len(g.Pending))
				printResources(w, g.Pending)
				fmt.Fprintf(w, "\nApproved (%d)\n", len(g.Approved))
				printResources(w, g.Approved)
				fmt.Fprintf(w, "\nRejected (%d)\n", len(g.Rejected))
				printResources(w, g.Rejected)
				for _, r := range g.Rejected {
					if r.RejectionReason != "" {
						fmt.Fprintf(w, "  %s: %s\n", r.Title, r.RejectionReason)
					}
				}
			})
		},
	}
}

func newResourcesShowCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show resource details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rt.app.Resources.Get(cmd.Context(), domain.ID(args[0]))
			if err != nil {
				return err
			}
			return rt.emit(cmd, r, func(w io.Writer) { printResource(w, r) })
		},
	}
}

func newResourcesUploadCommand(rt *runtime) *cobra.Command {
	var form workflow.UploadForm
	var resourceType string
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a file for moderation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uploader, err := rt.app.Uploader()
			if err != nil {
				return err
			}
			file, closer, err := storage.Open(args[0])
			if err != nil {
				return err
			}
			defer closer.Close()
			form.File = &file
			form.ResourceType = domain.ResourceType(resourceType)
			r, err := uploader.Upload(cmd.Context(), form)
			if err != nil {
				return err
			}
			return rt.emit(cmd, r, func(w io.Writer) {
				fmt.Fprintf(w, "Uploaded %q. It will be visible once an admin approves it.\n", r.Title)
			})
		},
	}
	cmd.Flags().StringVar(&form.Title, "title", "", "title")
	cmd.Flags().StringVar(&form.CourseName, "course", "", "course name")
	cmd.Flags().StringVar(&form.Description, "description", "", "description")
	cmd.Flags().StringVar(&resourceType, "type", "", "resource type, e.g. Notes")
	cmd.Flags().StringVar(&form.Department, "department", "", "department")
	cmd.Flags().StringVar(&form.Semester, "semester", "", "semester")
	cmd.Flags().StringVar(&form.Section, "section", "", "section")
	cmd.Flags().StringVar(&form.Batch, "batch", "", "batch")
	cmd.Flags().StringVar(&form.Year, "year", "", "year")
	return cmd
}

func newResourcesDeleteCommand(rt *runtime) *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one of your resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := rt.app.Resources.Get(ctx, domain.ID(args[0]))
			if err != nil {
				return err
			}
			if workflow.NeedsConfirmation(r) && !cmd.Flags().Changed("confirm") {
				confirm, err = rt.prompt(cmd, fmt.Sprintf("Type %q to confirm deletion: ", r.Title))
				if err != nil {
					return err
				}
			}
			if err := rt.app.Deleter.Delete(ctx, r, confirm); err != nil {
				return err
			}
			rt.println(cmd, "Deleted %q", r.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "the resource title, to confirm deletion")
	return cmd
}

func newResourcesViewCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "view ID",
		Short: "Print the file URL and count a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := rt.app.Resources.Get(ctx, domain.ID(args[0]))
			if err != nil {
				return err
			}
			url, _ := rt.app.Viewer.Open(ctx, r)
			rt.println(cmd, "%s", url)
			return nil
		},
	}
}

func newResourcesDownloadCommand(rt *runtime) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download ID",
		Short: "Download the file and count a download",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			r, err := rt.app.Resources.Get(ctx, domain.ID(args[0]))
			if err != nil {
				return err
			}
			saved, _, err := rt.app.Viewer.Download(ctx, r, output)
			if err != nil {
				return err
			}
			rt.println(cmd, "Saved %s", saved)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default: the resource file name)")
	return cmd
}

package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"unibro/pkg/domain"
)

func printUser(w io.Writer, u domain.User) {
	verified := "no"
	if u.IsVerified {
		verified = "yes"
	}
	fmt.Fprintf(w, "%s <%s>\n", u.FullName, u.Email)
	fmt.Fprintf(w, "  id: %s  role: %s  verified: %s\n", u.ID, u.Role, verified)
}

func printResources(w io.Writer, items []domain.Resource) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tTYPE\tCOURSE\tSTATUS\tVIEWS\tDOWNLOADS")
	for _, r := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n", r.ID, r.Title, r.ResourceType, r.CourseName, r.Status, r.ViewCount, r.DownloadCount)
	}
	_ = tw.Flush()
}

func printResource(w io.Writer, r domain.Resource) {
	fmt.Fprintf(w, "%s (%s)\n", r.Title, r.ID)
	fmt.Fprintf(w, "  course: %s  type: %s  department: %s\n", r.CourseName, r.ResourceType, r.Department)
	fmt.Fprintf(w, "  semester: %s  year: %s  status: %s\n", r.Semester, r.Year, r.Status)
	fmt.Fprintf(w, "  file: %s (%s, %s", r.FileName, r.FileType, r.FileSize)
	if r.Pages > 0 {
		fmt.Fprintf(w, ", %d pages", r.Pages)
	}
	fmt.Fprintln(w, ")")
	if r.Description != "" {
		fmt.Fprintf(w, "  %s\n", r.Description)
	}
	if r.Status == domain.StatusRejected && r.RejectionReason != "" {
		fmt.Fprintf(w, "  rejected: %s\n", r.RejectionReason)
	}
}

func printStaff(w io.Writer, items []domain.Staff) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDESIGNATION\tDEPARTMENT\tEMAIL")
	for _, s := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Designation, s.Department, s.Email)
	}
	_ = tw.Flush()
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ID is a backend identifier. The API emits both numeric and string ids.
type ID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleAdmin   UserRole = "admin"
)

type User struct {
	ID         ID       `json:"id"`
	FullName   string   `json:"fullName"`
	Email      string   `json:"email"`
	Role       UserRole `json:"role"`
	IsVerified bool     `json:"isVerified"`
	Token      string   `json:"token,omitempty"`
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

type ResourceType string

const (
	TypeAssignments   ResourceType = "Assignments"
	TypeQuizzes       ResourceType = "Quizzes"
	TypeProjects      ResourceType = "Projects"
	TypePresentations ResourceType = "Presentations"
	TypeNotes         ResourceType = "Notes"
	TypePastPapers    ResourceType = "Past Papers"
)

// ResourceTypes lists every upload category in display order.
var ResourceTypes = []ResourceType{
	TypeAssignments,
	TypeQuizzes,
	TypeProjects,
	TypePresentations,
	TypeNotes,
	TypePastPapers,
}

// Valid reports whether t is a known category.
func (t ResourceType) Valid() bool {
	for _, known := range ResourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// CanTransitionTo reports whether moderation may move a resource from s to next.
// Only pending resources can be approved or rejected; nothing returns to pending.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && (next == StatusApproved || next == StatusRejected)
}

type Resource struct {
	ID              ID           `json:"id"`
	Title           string       `json:"title"`
	CourseName      string       `json:"courseName"`
	Description     string       `json:"description,omitempty"`
	ResourceType    ResourceType `json:"resourceType"`
	Department      string       `json:"department"`
	Semester        string       `json:"semester"`
	Section         string       `json:"section,omitempty"`
	Batch           string       `json:"batch,omitempty"`
	Year            string       `json:"year"`
	FileURL         string       `json:"fileUrl"`
	FileName        string       `json:"fileName"`
	FileSize        string       `json:"fileSize"`
	FileType        string       `json:"fileType"`
	ThumbnailURL    string       `json:"thumbnailUrl,omitempty"`
	Pages           int          `json:"pages,omitempty"`
	DownloadCount   int          `json:"downloadCount"`
	ViewCount       int          `json:"viewCount"`
	UploaderName    string       `json:"uploaderName,omitempty"`
	UploaderEmail   string       `json:"uploaderEmail,omitempty"`
	Status          Status       `json:"status"`
	RejectionReason string       `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// YearGroup is one year's worth of approved resources in a listing.
type YearGroup struct {
	Year      string     `json:"year"`
	Resources []Resource `json:"resources"`
}

// GroupByYear buckets resources by year, newest year first. Numeric years sort
// numerically; anything else sorts after them lexically.
func GroupByYear(items []Resource) []YearGroup {
	index := make(map[string]int)
	var groups []YearGroup
	for _, r := range items {
		i, ok := index[r.Year]
		if !ok {
			i = len(groups)
			index[r.Year] = i
			groups = append(groups, YearGroup{Year: r.Year})
		}
		groups[i].Resources = append(groups[i].Resources, r)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		ya, errA := strconv.Atoi(groups[a].Year)
		yb, errB := strconv.Atoi(groups[b].Year)
		switch {
		case errA == nil && errB == nil:
			return ya > yb
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return groups[a].Year < groups[b].Year
		}
	})
	return groups
}

// StatusGroups holds a user's uploads split by moderation status.
type StatusGroups struct {
	Pending  []Resource `json:"pending"`
	Approved []Resource `json:"approved"`
	Rejected []Resource `json:"rejected"`
}

// GroupByStatus splits resources by status. Unknown statuses are dropped.
func GroupByStatus(items []Resource) StatusGroups {
	var g StatusGroups
	for _, r := range items {
		switch r.Status {
		case StatusPending:
			g.Pending = append(g.Pending, r)
		case StatusApproved:
			g.Approved = append(g.Approved, r)
		case StatusRejected:
			g.Rejected = append(g.Rejected, r)
		}
	}
	return g
}

// Total returns the number of grouped resources.
func (g StatusGroups) Total() int {
	return len(g.Pending) + len(g.Approved) + len(g.Rejected)
}

// ModerationStats backs the admin dashboard stat cards.
type ModerationStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Staff is a faculty directory entry.
type Staff struct {
	ID           ID     `json:"id"`
	Name         string `json:"name"`
	Designation  string `json:"designation"`
	Department   string `json:"department"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Office       string `json:"office,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
	Bio          string `json:"bio,omitempty"`
}

package workflow

import (
	"context"

	"unibro/pkg/apierr"
	"unibro/pkg/domain"
)

// ResourceDeleter removes resources.
type ResourceDeleter interface {
	Delete(ctx context.Context, id domain.ID) error
}

// Deleter gates deletion behind a typed-title confirmation.
type Deleter struct {
	resources ResourceDeleter
}

func NewDeleter(resources ResourceDeleter) *Deleter {
	return &Deleter{resources: resources}
}

// NeedsConfirmation reports whether r must be confirmed by retyping its title.
// Rejected resources are deleted directly.
func NeedsConfirmation(r domain.Resource) bool {
	return r.Status != domain.StatusRejected
}

// Delete removes r. Unless r is rejected, confirm must equal its title exactly
// or no request is sent.
func (d *Deleter) Delete(ctx context.Context, r domain.Resource, confirm string) error {
	if r.ID == "" {
		return apierr.Validation("Resource id is required")
	}
	if NeedsConfirmation(r) && confirm != r.Title {
		return apierr.Validation("Title does not match. Type the exact title to confirm deletion")
	}
	return d.resources.Delete(ctx, r.ID)
}

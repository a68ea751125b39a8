package notification

import (
	"context"

	"github.com/phasehumans/campus-portal-api/internal/model"
)

// Dispatch is a request to notify a set of users. Roles fan out to every active user
// holding one of them; RecipientIDs are notified directly.
type Dispatch struct {
	RecipientIDs []string           `json:"recipientIds,omitempty"`
	Roles        []model.Role       `json:"roles,omitempty"`
	ExcludeIDs   []string           `json:"excludeIds,omitempty"`
	Title        string             `json:"title"`
	Message      string             `json:"message"`
	Type         string             `json:"type"`
	Resource     *model.ResourceRef `json:"relatedResource,omitempty"`
}

// Notifier accepts best-effort notifications. It never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, d Dispatch)
}

// Nop drops every notification.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, Dispatch) {}

// Ref builds a resource pointer.
func Ref(resourceType, id string) *model.ResourceRef {
	return &model.ResourceRef{Type: resourceType, ID: id}
}

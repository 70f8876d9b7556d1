package auth

import (
	"github.com/ormea-systems/maildesk/internal/models"
)

// Policy centralizes the authorization rules that were previously ad hoc
// role comparisons scattered across operations. Every privileged
// decision takes (actor, target) explicitly.
type Policy struct{}

func NewPolicy() *Policy {
	return &Policy{}
}

func (p *Policy) IsAdmin(actor *models.User) bool {
	return actor != nil && actor.Role == models.RoleAdmin
}

// CanEditContent reports whether actor may change a mail's subject or
// content: its creator, or an administrator.
func (p *Policy) CanEditContent(actor *models.User, m *models.Mail) bool {
	if actor == nil {
		return false
	}
	return actor.ID == m.CreatedByID || p.IsAdmin(actor)
}

// CanBeAssigned reports whether assignee may be assigned to m: an
// administrator, or a user whose home service is one of the mail's
// recipient services.
func (p *Policy) CanBeAssigned(assignee *models.User, m *models.Mail) bool {
	if assignee == nil {
		return false
	}
	if p.IsAdmin(assignee) {
		return true
	}
	return assignee.ServiceID != "" && m.AddressedTo(assignee.ServiceID)
}

// CanDeleteUser reports whether actor may delete target. Administrators
// manage users but never delete their own account.
func (p *Policy) CanDeleteUser(actor, target *models.User) bool {
	return p.IsAdmin(actor) && actor.ID != target.ID
}

// CanSetPassword reports whether actor may change target's password:
// the user themselves, or an administrator.
func (p *Policy) CanSetPassword(actor, target *models.User) bool {
	if actor == nil {
		return false
	}
	return actor.ID == target.ID || p.IsAdmin(actor)
}

package access

import (
	"github.com/sst/sst/internal/domain/safety"
)

// Account is the part of a user account relevant to administrative gating.
type Account struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organizacion_id"`
	Roles          Roles  `json:"roles"`
}

// AccountView is the level of access a caller gets on another account.
type AccountView string

const (
	AccountViewNone     AccountView = "none"
	AccountViewReadOnly AccountView = "read_only"
	AccountViewFull     AccountView = "full"
)

// AccountDecision is the outcome of AccountAccess.
type AccountDecision struct {
	View              AccountView `json:"view"`
	CanEditRoles      bool        `json:"can_edit_roles"`
	CanViewManagement bool        `json:"can_view_management"`
}

// AccountAccess decides what caller may do with target's account.
//
// Super admins get full access everywhere. Anyone else is confined to their
// organization. A company admin gets full access to lower-ranked accounts and
// a read-only view of peers, superiors and themselves; only super admins edit
// another admin's roles or see a super admin's management controls. Other
// roles see their own account read-only and nothing else.
func AccountAccess(caller, target Account) AccountDecision {
	none := AccountDecision{View: AccountViewNone}
	caps := Derive(caller.Roles)
	if caps.Has(CapManageSystemAccounts) {
		return AccountDecision{View: AccountViewFull, CanEditRoles: true, CanViewManagement: true}
	}
	if caller.OrganizationID == "" || caller.OrganizationID != target.OrganizationID {
		return none
	}
	self := caller.UserID == target.UserID
	if caps.Has(CapManageAccounts) {
		if !self && adminTier(Derive(target.Roles)) < adminTier(caps) {
			return AccountDecision{View: AccountViewFull, CanEditRoles: true, CanViewManagement: true}
		}
		return AccountDecision{View: AccountViewReadOnly}
	}
	if self {
		return AccountDecision{View: AccountViewReadOnly}
	}
	return none
}

// adminTier orders capability sets by the accounts they may manage.
func adminTier(caps CapabilitySet) int {
	switch {
	case caps.Has(CapManageSystemAccounts):
		return 2
	case caps.Has(CapManageAccounts):
		return 1
	default:
		return 0
	}
}

// systemRoles may only be granted by a super admin.
var systemRoles = []Role{RoleSuperAdmin, RoleCompanyAdmin}

// AssertCanCreateAccount checks that caller may create an account in orgID
// with the requested roles. Accounts carrying an administrative role are
// system accounts.
func AssertCanCreateAccount(caller Account, orgID string, requested Roles) error {
	const op = "create account"
	caps := Derive(caller.Roles)
	if caps.Has(CapManageSystemAccounts) {
		return nil
	}
	if !caps.Has(CapManageAccounts) || caller.OrganizationID == "" || caller.OrganizationID != orgID {
		return safety.AccessDenied(op)
	}
	for _, r := range systemRoles {
		if requested.Has(r) {
			return safety.AccessDenied(op)
		}
	}
	return nil
}

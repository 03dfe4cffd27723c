// Package authz evaluates role capabilities before any state machine runs.
package authz

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/outbox"
)

// Actor is the authenticated caller. Representatives are the accounts, so
// UserID is also the representative id.
type Actor struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      enums.Role
}

// OutboxRef converts the actor for event envelopes.
func (a Actor) OutboxRef() *outbox.ActorRef {
	return &outbox.ActorRef{UserID: a.UserID, CompanyID: a.CompanyID, Role: string(a.Role)}
}

type Capability string

const (
	// CapFieldWork covers the representative's own session, visit and
	// discovery operations.
	CapFieldWork         Capability = "field_work"
	CapForceCheckout     Capability = "force_checkout"
	CapForceCloseSession Capability = "force_close_session"
	CapAssignLead        Capability = "assign_lead"
	CapViewSession       Capability = "view_session"
	CapViewVisits        Capability = "view_visits"
	CapViewLeads         Capability = "view_leads"
	CapViewReports       Capability = "view_reports"
	CapViewTeam          Capability = "view_team"
	CapTrackLive         Capability = "track_live"
	CapManageCompany     Capability = "manage_company"
)

// Scope is the target of an operation. A zero CompanyID skips the tenant
// check; a zero RepresentativeID means the actor themselves.
type Scope struct {
	CompanyID        uuid.UUID
	RepresentativeID uuid.UUID
}

// Self scopes an operation to the actor's own records.
func Self(a Actor) Scope {
	return Scope{CompanyID: a.CompanyID, RepresentativeID: a.UserID}
}

var capabilityRoles = map[Capability][]enums.Role{
	CapFieldWork:         {enums.RoleSalesRep},
	CapForceCheckout:     {enums.RoleSalesRep, enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD},
	CapForceCloseSession: {enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD},
	CapAssignLead:        {enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD, enums.RoleOwner},
	CapViewSession:       {enums.RoleSalesRep, enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD, enums.RoleOwner},
	CapViewVisits:        {enums.RoleSalesRep, enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD, enums.RoleOwner},
	CapViewLeads:         {enums.RoleSalesRep, enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD, enums.RoleOwner},
	CapViewReports:       {enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD, enums.RoleOwner},
	CapViewTeam:          {enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD, enums.RoleOwner},
	CapTrackLive:         {enums.RoleOrgAdmin, enums.RoleAdmin, enums.RoleHOD},
	CapManageCompany:     {enums.RoleOrgAdmin, enums.RoleAdmin},
}

// selfOnlyForReps lists capabilities a sales rep may only exercise on their
// own records.
var selfOnlyForReps = map[Capability]bool{
	CapFieldWork:     true,
	CapForceCheckout: true,
	CapViewSession:   true,
	CapViewVisits:    true,
	CapViewLeads:     true,
}

// Allowed is a pure predicate over role, capability and target scope.
func Allowed(actor Actor, capability Capability, scope Scope) bool {
	if actor.UserID == uuid.Nil || !actor.Role.IsValid() {
		return false
	}
	if scope.CompanyID != uuid.Nil && scope.CompanyID != actor.CompanyID {
		return false
	}
	if !hasRole(capabilityRoles[capability], actor.Role) {
		return false
	}
	if actor.Role == enums.RoleSalesRep && selfOnlyForReps[capability] {
		return scope.RepresentativeID == uuid.Nil || scope.RepresentativeID == actor.UserID
	}
	return true
}

// Require returns a CAPABILITY_DENIED error when Allowed is false.
func Require(actor Actor, capability Capability, scope Scope) error {
	if Allowed(actor, capability, scope) {
		return nil
	}
	return pkgerrors.Forbidden(pkgerrors.ReasonCapabilityDenied, "operation not permitted for role "+string(actor.Role))
}

func hasRole(roles []enums.Role, role enums.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

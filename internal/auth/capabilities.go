package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Capability is one permission a principal may hold.
type Capability string

const (
	CapBlobUpload       Capability = "blob.upload"
	CapBlobDelete       Capability = "blob.delete"
	CapCredentialSubmit Capability = "credential.submit_own"
	CapCredentialManage Capability = "credential.manage"
	CapCredentialReview Capability = "credential.review"
	CapContractCreate   Capability = "contract.create"
	CapContractList     Capability = "contract.list"
	CapContractDelete   Capability = "contract.delete"
	CapCatalogManage    Capability = "catalog.manage"
	CapUserManage       Capability = "user.manage"
)

// Role is a named capability preset assigned to provisioned users.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleHR      Role = "hr"
	RoleSubject Role = "subject"
)

var allCapabilities = []Capability{
	CapBlobUpload,
	CapBlobDelete,
	CapCredentialSubmit,
	CapCredentialManage,
	CapCredentialReview,
	CapContractCreate,
	CapContractList,
	CapContractDelete,
	CapCatalogManage,
	CapUserManage,
}

var rolePresets = map[Role][]Capability{
	RoleAdmin: allCapabilities,
	RoleHR: {
		CapBlobUpload,
		CapBlobDelete,
		CapCredentialSubmit,
		CapCredentialManage,
		CapCredentialReview,
		CapContractCreate,
		CapContractList,
		CapContractDelete,
		CapCatalogManage,
	},
	RoleSubject: {
		CapBlobUpload,
		CapCredentialSubmit,
	},
}

// ParseRole validates a role name.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if role == "" {
		return "", fmt.Errorf("role is required")
	}
	if _, ok := rolePresets[role]; !ok {
		return "", fmt.Errorf("invalid role: %s", role)
	}
	return role, nil
}

// CapabilitySet is an immutable set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// CapabilitiesForRole returns the preset for role. Unknown roles get an empty set.
func CapabilitiesForRole(role Role) CapabilitySet {
	return NewCapabilitySet(rolePresets[role]...)
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Strings returns sorted capability names.
func (s CapabilitySet) Strings() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

// Principal is the acting identity behind a request.
type Principal struct {
	UserID       string
	Username     string
	Role         Role
	PersonID     string
	Capabilities CapabilitySet
}

// SystemPrincipal is the bootstrap identity authenticated by the admin token.
func SystemPrincipal() Principal {
	return Principal{
		UserID:       "system",
		Username:     "system",
		Role:         RoleAdmin,
		Capabilities: CapabilitiesForRole(RoleAdmin),
	}
}

// Can reports whether the principal holds c.
func (p Principal) Can(c Capability) bool {
	return p.Capabilities.Has(c)
}

// IsZero reports whether p carries no identity.
func (p Principal) IsZero() bool {
	return p.UserID == ""
}

// ActsFor reports whether the principal may act on records owned by personID.
// Managers act for everyone; other principals only for their own linked person.
func (p Principal) ActsFor(personID string, manage Capability) bool {
	if p.Can(manage) {
		return true
	}
	return p.PersonID != "" && p.PersonID == personID
}

package permission

import "strings"

// Tier is the permission level derived from a message's origin.
type Tier string

const (
	TierAdmin    Tier = "admin"
	TierEmployee Tier = "employee"
	TierPublic   Tier = "public"
)

// AtLeast reports whether t grants at least the privileges of other.
func (t Tier) AtLeast(other Tier) bool {
	return rank(t) >= rank(other)
}

func rank(t Tier) int {
	switch t {
	case TierAdmin:
		return 2
	case TierEmployee:
		return 1
	default:
		return 0
	}
}

// Resolver maps (sender id, group id) onto a permission tier using the
// allow-lists read at process start. It holds no mutable state and is safe
// for concurrent use.
type Resolver struct {
	adminGroups    map[string]struct{}
	employeeGroups map[string]struct{}
	adminSenders   map[string]struct{}
}

// NewResolver builds a resolver from the configured allow-lists.
func NewResolver(adminGroups, employeeGroups, adminSenders []string) *Resolver {
	return &Resolver{
		adminGroups:    toSet(adminGroups),
		employeeGroups: toSet(employeeGroups),
		adminSenders:   toSet(adminSenders),
	}
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return set
}

// Resolve returns the tier for a message. groupID is empty for direct
// messages. Unknown identifiers always resolve to TierPublic.
func (r *Resolver) Resolve(senderID, groupID string) Tier {
	if r == nil {
		return TierPublic
	}
	if _, ok := r.adminSenders[senderID]; ok {
		return TierAdmin
	}
	if groupID != "" {
		if _, ok := r.adminGroups[groupID]; ok {
			return TierAdmin
		}
		if _, ok := r.employeeGroups[groupID]; ok {
			return TierEmployee
		}
	}
	return TierPublic
}

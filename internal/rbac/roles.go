// Package rbac implements the role hierarchy and permission matrix that
// gate every route. Role checks are rank-based: a higher role always passes
// a lower-role requirement. Permission checks are exact allow-lists with no
// rank elevation; an admin not listed for a permission is denied. The
// asymmetry is deliberate: ranks model seniority, permissions model
// capability.
package rbac

type Role string

const (
	RoleTechnician Role = "technician"
	RoleAgent      Role = "agent"
	RoleSales      Role = "sales"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleMaster     Role = "master"
)

// roleRanks is the canonical rank table. Technician is strictly the lowest
// tier, below agent; ranks form a single total order with no ties.
var roleRanks = map[Role]int{
	RoleTechnician: 1,
	RoleAgent:      2,
	RoleSales:      3,
	RoleManager:    4,
	RoleAdmin:      5,
	RoleMaster:     6,
}

// Rank returns the role's position in the hierarchy, or 0 for an unknown
// role. Unknown roles never pass any minimum-role check.
func Rank(r Role) int {
	return roleRanks[r]
}

func IsKnown(r Role) bool {
	_, ok := roleRanks[r]
	return ok
}

// Roles lists the known roles in ascending rank order.
func Roles() []Role {
	return []Role{RoleTechnician, RoleAgent, RoleSales, RoleManager, RoleAdmin, RoleMaster}
}

// HasMinimumRole reports whether actual ranks at or above required.
// Reflexive and transitive by construction of the rank table.
func HasMinimumRole(actual, required Role) bool {
	actualRank := Rank(actual)
	requiredRank := Rank(required)
	if actualRank == 0 || requiredRank == 0 {
		return false
	}
	return actualRank >= requiredRank
}

// Package access derives capabilities from caller roles and decides which
// document fields a caller may read or write.
package access

// Role is a recognised caller role.
type Role string

const (
	RoleSuperAdmin     Role = "super_admin"
	RoleCompanyAdmin   Role = "admin_empresa"
	RoleSafetyEngineer Role = "ingeniero_sst"
	RoleMedicalDoctor  Role = "medico"
	RoleMedicalCenter  Role = "centro_medico"
	RoleSupervisor     Role = "supervisor"
	RoleTrainer        Role = "capacitador"
	RoleWorker         Role = "trabajador"
)

var knownRoles = map[Role]bool{
	RoleSuperAdmin:     true,
	RoleCompanyAdmin:   true,
	RoleSafetyEngineer: true,
	RoleMedicalDoctor:  true,
	RoleMedicalCenter:  true,
	RoleSupervisor:     true,
	RoleTrainer:        true,
	RoleWorker:         true,
}

// Roles is a caller's recognised role set.
type Roles []Role

// ParseRoles keeps the recognised roles of raw, dropping unknown strings and
// duplicates.
func ParseRoles(raw []string) Roles {
	seen := make(map[Role]bool, len(raw))
	out := make(Roles, 0, len(raw))
	for _, s := range raw {
		r := Role(s)
		if knownRoles[r] && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func (rs Roles) Has(r Role) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// Health reports whether the set contains a recognised health professional.
func (rs Roles) Health() bool {
	return rs.Has(RoleMedicalDoctor) || rs.Has(RoleMedicalCenter)
}

func (rs Roles) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}

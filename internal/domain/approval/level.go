package approval

// Level is the organizational tier required to release a document for posting
type Level string

const (
	LevelAuto      Level = "AUTO"
	LevelStandard  Level = "STANDARD"
	LevelManager   Level = "MANAGER"
	LevelExecutive Level = "EXECUTIVE"
)

// rank orders levels for tier comparison
func (l Level) rank() int {
	switch l {
	case LevelAuto:
		return 0
	case LevelStandard:
		return 1
	case LevelManager:
		return 2
	case LevelExecutive:
		return 3
	default:
		return -1
	}
}

// IsValid reports whether the level is a known tier
func (l Level) IsValid() bool {
	return l.rank() >= 0
}

// Next returns the next tier up; EXECUTIVE is the ceiling
func (l Level) Next() Level {
	switch l {
	case LevelAuto:
		return LevelStandard
	case LevelStandard:
		return LevelManager
	default:
		return LevelExecutive
	}
}

// AtOrAbove reports whether l is at least the given tier
func (l Level) AtOrAbove(other Level) bool {
	return l.rank() >= other.rank()
}

// Role is an actor's position in the fixed authorization hierarchy
type Role string

const (
	RoleSystem     Role = "system"
	RoleAccountant Role = "accountant"
	RoleManager    Role = "manager"
	RoleExecutive  Role = "executive"
	RoleAdmin      Role = "admin"
)

// rank orders roles in the fixed hierarchy
func (r Role) rank() int {
	switch r {
	case RoleSystem:
		return 0
	case RoleAccountant:
		return 1
	case RoleManager:
		return 2
	case RoleExecutive:
		return 3
	case RoleAdmin:
		return 4
	default:
		return -1
	}
}

// IsValid reports whether the role is part of the hierarchy
func (r Role) IsValid() bool {
	return r.rank() >= 0
}

// AtLeast reports whether r ranks at or above other
func (r Role) AtLeast(other Role) bool {
	return r.rank() >= other.rank()
}

// RequiredRole maps an approval level to the minimum role that may act on it
func RequiredRole(l Level) Role {
	switch l {
	case LevelManager:
		return RoleManager
	case LevelExecutive:
		return RoleExecutive
	default:
		return RoleAccountant
	}
}

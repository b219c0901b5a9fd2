package catalog

// Ability names one permission surface on a resource type.
type Ability string

const (
	AbilityControl  Ability = "control"
	AbilityAllocate Ability = "allocate"
	AbilityView     Ability = "view"
)

// AdminRole is the role that retains control and allocation rights when a
// grant list is explicitly empty.
const AdminRole = "admin"

// HasPermission decides whether an actor holds an ability on a resource
// type.
//
// A nil permissions block means access is unrestricted, the
// backward-compatible default for types created before permissions existed.
// An empty viewer list means everyone can view; an empty controller or
// allocator list means the admin role only. Otherwise a grant matches on
// the actor's id (user grants) or role (role grants).
func HasPermission(ability Ability, perms *Permissions, actorID, actorRole string) bool {
	if perms == nil {
		return true
	}

	var grants []Grant
	switch ability {
	case AbilityControl:
		grants = perms.Controllers
	case AbilityAllocate:
		grants = perms.Allocators
	case AbilityView:
		grants = perms.Viewers
	default:
		return false
	}

	if len(grants) == 0 {
		if ability == AbilityView {
			return true
		}
		return actorRole == AdminRole
	}

	for _, g := range grants {
		switch g.Type {
		case GrantUser:
			if g.ID == actorID {
				return true
			}
		case GrantRole:
			if g.ID == actorRole {
				return true
			}
		}
	}
	return false
}

// CanView reports view access.
func CanView(rt ResourceType, actorID, actorRole string) bool {
	return HasPermission(AbilityView, rt.Permissions, actorID, actorRole)
}

// CanControl reports control access (editing the type, its constraints,
// and its relations).
func CanControl(rt ResourceType, actorID, actorRole string) bool {
	return HasPermission(AbilityControl, rt.Permissions, actorID, actorRole)
}

// CanAllocate reports allocation access.
func CanAllocate(rt ResourceType, actorID, actorRole string) bool {
	return HasPermission(AbilityAllocate, rt.Permissions, actorID, actorRole)
}

package domain

// Authz is the authorization context for an operation: who is acting and
// with which roles. It replaces any notion of an ambient "current request";
// callers construct it from their transport layer and pass it in
// explicitly.
type Authz struct {
	AccountID string
	Roles     []string
}

// IsOwner reports whether the actor is the account being operated on.
func (a Authz) IsOwner(accountID string) bool {
	return a.AccountID != "" && a.AccountID == accountID
}

// HasRole reports whether the actor holds the named role.
func (a Authz) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for HasRole(RoleAdmin).
func (a Authz) IsAdmin() bool { return a.HasRole(RoleAdmin) }

package domain

// User is the authenticated identity behind a session record.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"` // "estudiante" or "tutor"
}

// SenderRole maps the account role onto the wire-level sender role.
func (u User) SenderRole() Role {
	if u.Role == "tutor" {
		return RoleTutor
	}
	return RoleUser
}

// SessionRecord is one entry in the shared session table: the credential and
// identity a single tab is authenticated as. Each tab writes only its own
// record; every tab may read all of them for session listing.
type SessionRecord struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

package domain

import "strings"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleAgent    Role = "agent"
	RoleSales    Role = "sales"
	RoleEmployee Role = "employee"
	RoleUser     Role = "user"
	RoleSystem   Role = "system"
)

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleAgent, RoleSales, RoleEmployee, RoleUser:
		return role, true
	default:
		return "", false
	}
}

// IsStaff reports whether the role works on applications it does not own.
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleSales, RoleEmployee:
		return true
	default:
		return false
	}
}

// Session is the authenticated caller of a single request.
type Session struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

func (s Session) HasRole(roles ...Role) bool {
	for _, role := range roles {
		if s.Role == role {
			return true
		}
	}
	return false
}

// SystemSession attributes automatic transitions.
func SystemSession() Session {
	return Session{UserID: SystemActorID, Name: "System", Role: RoleSystem}
}

// CanView reports whether the session may read app.
func (s Session) CanView(app *Application) bool {
	switch s.Role {
	case RoleAdmin, RoleEmployee, RoleSales:
		return true
	case RoleAgent:
		return app.AgentID == "" || app.AssignedTo(s.UserID)
	case RoleUser:
		return app.UserID == s.UserID
	default:
		return false
	}
}

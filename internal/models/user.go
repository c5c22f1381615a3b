package models

// UserIdentity is the identity provider's userinfo response.
type UserIdentity struct {
	Subject           string   `json:"sub"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Name              string   `json:"name,omitempty"`
	GivenName         string   `json:"given_name,omitempty"`
	FamilyName        string   `json:"family_name,omitempty"`
	Email             string   `json:"email,omitempty"`
	EmailVerified     *bool    `json:"email_verified,omitempty"`
	Roles             []string `json:"roles,omitempty"`
}

// User is the portal's display model of the signed-in employee.
// Position, department, legal entity, avatar and balances come from
// other portal APIs and are empty until those are fetched.
type User struct {
	ID                    string   `json:"id"`
	Username              string   `json:"username"`
	Email                 string   `json:"email"`
	FirstName             string   `json:"first_name"`
	LastName              string   `json:"last_name"`
	Position              string   `json:"position"`
	Department            string   `json:"department"`
	LegalEntity           string   `json:"legal_entity"`
	AvatarURL             string   `json:"avatar_url,omitempty"`
	AvailableVacationDays int      `json:"available_vacation_days"`
	BonusPoints           int      `json:"bonus_points"`
	Roles                 []string `json:"roles,omitempty"`
}

// NewUserFromIdentity maps a userinfo response to the portal user.
// The username falls back to the email, then to the subject.
func NewUserFromIdentity(id *UserIdentity) *User {
	username := id.PreferredUsername
	if username == "" {
		username = id.Email
	}
	if username == "" {
		username = id.Subject
	}
	return &User{
		ID:        id.Subject,
		Username:  username,
		Email:     id.Email,
		FirstName: id.GivenName,
		LastName:  id.FamilyName,
		Roles:     id.Roles,
	}
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUserFromIdentity(t *testing.T) {
	u := NewUserFromIdentity(&UserIdentity{
		Subject:           "f3a1",
		PreferredUsername: "ivanova",
		GivenName:         "Anna",
		FamilyName:        "Ivanova",
		Email:             "anna@example.com",
		Roles:             []string{"employee"},
	})

	assert.Equal(t, "f3a1", u.ID)
	assert.Equal(t, "ivanova", u.Username)
	assert.Equal(t, "Anna", u.FirstName)
	assert.Equal(t, "Ivanova", u.LastName)
	assert.Equal(t, []string{"employee"}, u.Roles)
	assert.Zero(t, u.BonusPoints)
	assert.Empty(t, u.Department)
}

func TestNewUserFromIdentity_UsernameFallbacks(t *testing.T) {
	assert.Equal(t, "anna@example.com", NewUserFromIdentity(&UserIdentity{Subject: "s1", Email: "anna@example.com"}).Username)
	assert.Equal(t, "s1", NewUserFromIdentity(&UserIdentity{Subject: "s1"}).Username)
}

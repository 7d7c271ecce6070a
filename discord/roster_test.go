package discord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testGuild() *Guild {
	return &Guild{
		ID:      "g1",
		OwnerID: "owner",
		Roles: []Role{
			{ID: "g1", Name: "@everyone", Permissions: "0"},
			{ID: "mods", Name: "Mods", Permissions: "8192"},
			{ID: "admins", Name: "Admins", Permissions: "8"},
			{ID: "junk", Name: "Junk", Permissions: "not-a-number"},
		},
	}
}

func TestRosterPermissions(t *testing.T) {
	assert := assert.New(t)
	r := NewRoster(100, time.Hour)

	assert.False(r.HasGuild("g1"))
	assert.Equal(uint64(0), r.Permissions("g1", "u1", []string{"mods"}))

	r.SetGuild(testGuild())
	assert.True(r.HasGuild("g1"))

	assert.Equal(PermManageMessages, r.Permissions("g1", "u1", []string{"mods"}))
	assert.Equal(uint64(0), r.Permissions("g1", "u1", nil))
	assert.Equal(uint64(0), r.Permissions("g1", "u1", []string{"junk", "missing"}))
	assert.Equal(PermAll, r.Permissions("g1", "u1", []string{"admins"}))
	assert.Equal(PermAll, r.Permissions("g1", "owner", nil))

	assert.True(r.HasAnyPermission("g1", "u1", []string{"mods"}, PermManageMessages|PermBanMembers))
	assert.False(r.HasAnyPermission("g1", "u1", []string{"mods"}, PermBanMembers))
}

func TestRosterRoleUpdates(t *testing.T) {
	assert := assert.New(t)
	r := NewRoster(100, time.Hour)
	r.SetGuild(testGuild())

	// @everyone gains kick
	r.UpsertRole("g1", Role{ID: "g1", Permissions: "2"})
	assert.Equal(PermKickMembers, r.Permissions("g1", "u1", nil))

	r.UpsertRole("g1", Role{ID: "new", Permissions: "4"})
	assert.Equal(PermKickMembers|PermBanMembers, r.Permissions("g1", "u1", []string{"new"}))

	r.DeleteRole("g1", "admins")
	assert.Equal(PermKickMembers, r.Permissions("g1", "u1", []string{"admins"}))

	// deleting from an unknown guild must not create it
	r.DeleteRole("g2", "x")
	assert.False(r.HasGuild("g2"))

	r.RemoveGuild("g1")
	assert.False(r.HasGuild("g1"))
}

func TestRosterMembers(t *testing.T) {
	assert := assert.New(t)
	r := NewRoster(2, time.Hour)

	r.RememberMember("g1", nil)
	r.RememberMember("g1", &Member{Roles: []string{"x"}})
	_, ok := r.MemberRoles("g1", "")
	assert.False(ok)

	r.RememberMember("g1", &Member{User: &User{ID: "u1"}, Roles: []string{"mods"}})
	roles, ok := r.MemberRoles("g1", "u1")
	assert.True(ok)
	assert.Equal([]string{"mods"}, roles)

	_, ok = r.MemberRoles("g2", "u1")
	assert.False(ok)

	r.RememberMember("g1", &Member{User: &User{ID: "u2"}})
	r.RememberMember("g1", &Member{User: &User{ID: "u3"}})
	_, ok = r.MemberRoles("g1", "u1")
	assert.False(ok, "evicted by capacity")
}

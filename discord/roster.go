package discord

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/puzpuzpuz/xsync/v3"
)

type guildRoles struct {
	ownerID string
	// role ID to permission bits; the @everyone role has the guild's ID
	perms map[string]uint64
}

func (g *guildRoles) with(fn func(perms map[string]uint64)) *guildRoles {
	next := &guildRoles{ownerID: g.ownerID, perms: make(map[string]uint64, len(g.perms)+1)}
	for k, v := range g.perms {
		next.perms[k] = v
	}
	fn(next.perms)
	return next
}

// Roster tracks guild roles (from gateway events) and recently seen member role lists, so that
// permission questions can be answered without REST calls.
//
// Guild entries are immutable and swapped on update; reads never block on writers.
type Roster struct {
	guilds  *xsync.MapOf[string, *guildRoles]
	members *expirable.LRU[string, []string]
}

func NewRoster(memberCapacity int, memberTTL time.Duration) *Roster {
	return &Roster{
		guilds:  xsync.NewMapOf[string, *guildRoles](),
		members: expirable.NewLRU[string, []string](memberCapacity, nil, memberTTL),
	}
}

func (r *Roster) SetGuild(g *Guild) {
	gr := &guildRoles{ownerID: g.OwnerID, perms: make(map[string]uint64, len(g.Roles))}
	for _, role := range g.Roles {
		gr.perms[role.ID] = role.PermissionBits()
	}
	r.guilds.Store(g.ID, gr)
}

func (r *Roster) RemoveGuild(guildID string) {
	r.guilds.Delete(guildID)
}

func (r *Roster) HasGuild(guildID string) bool {
	_, ok := r.guilds.Load(guildID)
	return ok
}

func (r *Roster) UpsertRole(guildID string, role Role) {
	r.guilds.Compute(guildID, func(old *guildRoles, loaded bool) (*guildRoles, bool) {
		if !loaded {
			old = &guildRoles{}
		}
		return old.with(func(perms map[string]uint64) {
			perms[role.ID] = role.PermissionBits()
		}), false
	})
}

func (r *Roster) DeleteRole(guildID, roleID string) {
	r.guilds.Compute(guildID, func(old *guildRoles, loaded bool) (*guildRoles, bool) {
		if !loaded {
			return nil, true
		}
		return old.with(func(perms map[string]uint64) {
			delete(perms, roleID)
		}), false
	})
}

func memberKey(guildID, userID string) string {
	return guildID + "/" + userID
}

// RememberMember records the member's roles. Reaction add events carry the member; removes do not,
// so this is how removes get resolved.
func (r *Roster) RememberMember(guildID string, m *Member) {
	if m == nil || m.User == nil {
		return
	}
	r.members.Add(memberKey(guildID, m.User.ID), append([]string(nil), m.Roles...))
}

func (r *Roster) MemberRoles(guildID, userID string) ([]string, bool) {
	return r.members.Get(memberKey(guildID, userID))
}

// Permissions computes the guild level permission bits for a member holding roleIDs. The owner and
// administrators get everything. Channel overwrites are not considered.
func (r *Roster) Permissions(guildID, userID string, roleIDs []string) uint64 {
	gr, ok := r.guilds.Load(guildID)
	if !ok {
		return 0
	}
	if userID != "" && userID == gr.ownerID {
		return PermAll
	}
	perms := gr.perms[guildID]
	for _, id := range roleIDs {
		perms |= gr.perms[id]
	}
	if perms&PermAdministrator != 0 {
		return PermAll
	}
	return perms
}

// HasAnyPermission reports whether the member has at least one of the bits in mask.
func (r *Roster) HasAnyPermission(guildID, userID string, roleIDs []string, mask uint64) bool {
	return r.Permissions(guildID, userID, roleIDs)&mask != 0
}

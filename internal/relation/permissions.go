package relation

import (
	"context"
	"time"

	"github.com/alphabot-ai/threadcache/internal/identity"
	"github.com/alphabot-ai/threadcache/internal/store"
)

var memberNames = []string{Subscriber, Moderator, Contributor, Banned}

// Membership is one account's standing in one community.
type Membership struct {
	Subscriber     bool
	Moderator      bool
	Contributor    bool
	Banned         bool
	ModeratorSince time.Time
}

// LoadMembership returns the viewer's membership in each community with a
// single query. Logged-out viewers get zero memberships.
func (s *Store) LoadMembership(ctx context.Context, v *identity.Viewer, communityIDs []string) (map[string]Membership, error) {
	out := make(map[string]Membership, len(communityIDs))
	if v.ID() == "" || len(communityIDs) == 0 {
		return out, nil
	}

	set, err := s.Query(ctx, KindMember, []string{v.AccountID}, communityIDs, memberNames)
	if err != nil {
		return nil, err
	}
	for _, rel := range set {
		m := out[rel.ObjectID]
		switch rel.Name {
		case Subscriber:
			m.Subscriber = true
		case Moderator:
			m.Moderator = true
			m.ModeratorSince = rel.CreatedAt
		case Contributor:
			m.Contributor = true
		case Banned:
			m.Banned = true
		}
		out[rel.ObjectID] = m
	}
	return out, nil
}

// CanView reports whether v may see the community's content. Public and
// restricted communities are visible to everyone.
func CanView(v *identity.Viewer, c *store.Community, m Membership) bool {
	if c == nil {
		return true
	}
	switch c.Type {
	case store.CommunityPublic, store.CommunityRestricted, "":
		return true
	}
	if v.Admin {
		return true
	}
	return v.ID() != "" && (m.Contributor || m.Moderator)
}

// CanComment reports whether v may reply inside the community. Restricted
// communities only limit submissions.
func CanComment(v *identity.Viewer, c *store.Community, m Membership) bool {
	if v.ID() == "" {
		return false
	}
	if v.Admin {
		return true
	}
	if m.Banned {
		return false
	}
	if c == nil {
		return true
	}
	switch c.Type {
	case store.CommunityPublic, store.CommunityRestricted, "":
		return true
	}
	return m.Contributor || m.Moderator
}

// CanSubmit reports whether v may post stories to the community.
func CanSubmit(v *identity.Viewer, c *store.Community, m Membership) bool {
	if v.ID() == "" {
		return false
	}
	if v.Admin {
		return true
	}
	if m.Banned {
		return false
	}
	if c == nil || c.Type == store.CommunityPublic || c.Type == "" {
		return true
	}
	return m.Contributor || m.Moderator
}

// CanBan reports whether v moderates the community.
func CanBan(v *identity.Viewer, m Membership) bool {
	if v.ID() == "" {
		return false
	}
	return v.Admin || m.Moderator
}

// CanDistinguish reports whether v may mark content as official.
func CanDistinguish(v *identity.Viewer, m Membership) bool {
	return CanBan(v, m)
}

// IsSpecial reports whether v's content gets highlighted in the community.
func IsSpecial(v *identity.Viewer, m Membership) bool {
	if v.ID() == "" {
		return false
	}
	return v.Admin || m.Moderator || m.Contributor
}

// CanDemod reports whether bully may remove victim as a moderator. Only
// moderators appointed earlier than the victim, and admins, may.
func (s *Store) CanDemod(ctx context.Context, bully *identity.Viewer, victimID, communityID string) (bool, error) {
	if bully.ID() == "" {
		return false, nil
	}
	if bully.Admin {
		return true, nil
	}

	set, err := s.Query(ctx, KindMember, []string{bully.AccountID, victimID}, []string{communityID}, []string{Moderator})
	if err != nil {
		return false, err
	}
	mine, ok := set.Get(bully.AccountID, communityID, Moderator)
	if !ok {
		return false, nil
	}
	theirs, ok := set.Get(victimID, communityID, Moderator)
	if !ok {
		return true, nil
	}
	return mine.CreatedAt.Before(theirs.CreatedAt), nil
}

// Package roster resolves member names, the key every other entity uses to
// refer to a trip member.
package roster

import (
	"errors"
	"fmt"
	"net/url"

	"tripsync/model"
)

var ErrMemberNotFound = errors.New("member not found")

const avatarBaseURL = "https://api.dicebear.com/7.x/avataaars/svg?seed="

// Roster is an immutable view over one members snapshot.
type Roster struct {
	members []model.Member
}

func New(members []model.Member) Roster {
	cp := make([]model.Member, len(members))
	copy(cp, members)
	return Roster{members: cp}
}

func (r Roster) Members() []model.Member {
	out := make([]model.Member, len(r.members))
	copy(out, r.members)
	return out
}

func (r Roster) Len() int { return len(r.members) }

// Resolve finds a member by display name. Names are not unique in the
// store; the first match in snapshot order wins.
func (r Roster) Resolve(name string) (model.Member, error) {
	for _, m := range r.members {
		if m.Name == name {
			return m, nil
		}
	}
	return model.Member{}, fmt.Errorf("%w: %q", ErrMemberNotFound, name)
}

// Names returns every member name in snapshot order.
func (r Roster) Names() []string {
	out := make([]string, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.Name)
	}
	return out
}

// Keys returns the packing check-map key of every member.
func (r Roster) Keys() []string {
	out := make([]string, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.Key())
	}
	return out
}

// AvatarFor prefers the live member record, then the snapshot taken when
// the referencing record was written.
func (r Roster) AvatarFor(name, snapshot string) string {
	if m, err := r.Resolve(name); err == nil && m.Avatar != "" {
		return m.Avatar
	}
	return snapshot
}

// GeneratedAvatar returns the placeholder avatar URL seeded by name.
func GeneratedAvatar(name string) string {
	return avatarBaseURL + url.QueryEscape(name)
}

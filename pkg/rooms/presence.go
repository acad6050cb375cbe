package rooms

import (
	"sort"

	"github.com/samber/lo"

	"github.com/roomplus/roomplus/pkg/model"
	"github.com/roomplus/roomplus/pkg/registry"
)

// Presence derives per-room online-user lists from the membership index
// and the registry. Two connections sharing a username collapse into one
// entry; raw membership size can therefore exceed the presence count.
type Presence struct {
	idx *Index
	reg *registry.Registry
}

func NewPresence(idx *Index, reg *registry.Registry) *Presence {
	return &Presence{idx: idx, reg: reg}
}

// List returns the de-duplicated, sorted user list for a room.
func (p *Presence) List(roomID string) []model.PresenceEntry {
	var names []string
	for _, id := range p.idx.Members(roomID) {
		if username, ok := p.reg.Username(id); ok && username != "" {
			names = append(names, username)
		}
	}
	names = lo.Uniq(names)
	sort.Strings(names)
	return lo.Map(names, func(username string, _ int) model.PresenceEntry {
		return model.PresenceEntry{Username: username, Status: model.StatusOnline}
	})
}

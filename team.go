package main

import "slices"

// Team is a named group of players sharing a board position. Members
// are kept in join order. A team that loses its last member is pruned
// by the owning Game, so an empty Team never outlives the call that
// emptied it.
type Team struct {
	Name       string
	Members    []string
	Position   int
	StartVotes map[string]bool
}

func newTeam(name, creator string) *Team {
	return &Team{
		Name:       name,
		Members:    []string{creator},
		StartVotes: make(map[string]bool),
	}
}

func (t *Team) HasMember(player string) bool {
	return slices.Contains(t.Members, player)
}

func (t *Team) AddMember(player string) {
	if t.HasMember(player) {
		return
	}
	t.Members = append(t.Members, player)
}

// RemoveMember drops a player and their start vote, if any.
func (t *Team) RemoveMember(player string) {
	idx := slices.Index(t.Members, player)
	if idx < 0 {
		return
	}
	t.Members = slices.Delete(t.Members, idx, idx+1)
	delete(t.StartVotes, player)
}

package main

import (
	"fmt"

	"github.com/google/uuid"
)

// joinVote tracks one in-flight "may this candidate join this team"
// poll. The quorum and the set of eligible voters are frozen when the
// poll opens; members who join or leave the team afterwards neither
// gain nor lose a ballot. The owning Game deletes the entry the moment
// the quorum is reached, so a poll resolves exactly once.
type joinVote struct {
	ID        string
	Team      string
	Candidate string
	Quorum    int
	eligible  map[string]bool
	ballots   map[string]bool
}

// newJoinVote derives a readable ID from the poll's coordinates plus a
// random suffix, so concurrent polls for the same candidate can never
// collide.
func newJoinVote(game, team, candidate string, members []string) *joinVote {
	v := &joinVote{
		ID:        fmt.Sprintf("%s_%s_%s_%s", game, team, candidate, uuid.NewString()[:8]),
		Team:      team,
		Candidate: candidate,
		Quorum:    len(members),
		eligible:  make(map[string]bool, len(members)),
		ballots:   make(map[string]bool),
	}
	for _, m := range members {
		v.eligible[m] = true
	}
	return v
}

// cast records a ballot, overwriting any earlier one from the same
// voter.
func (v *joinVote) cast(voter string, accept bool) error {
	if !v.eligible[voter] {
		return fmt.Errorf("vote %s: %w", v.ID, errNotEligible)
	}
	v.ballots[voter] = accept
	return nil
}

// dropVoter removes a departed member from the frozen electorate so
// the poll can still resolve without them. Their ballot, if any, goes
// with them.
func (v *joinVote) dropVoter(voter string) {
	if !v.eligible[voter] {
		return
	}
	delete(v.eligible, voter)
	delete(v.ballots, voter)
	v.Quorum--
}

func (v *joinVote) resolved() bool {
	return len(v.ballots) >= v.Quorum
}

// accepted applies the majority rule: yes must strictly outnumber no,
// so ties reject.
func (v *joinVote) accepted() bool {
	yes := 0
	for _, accept := range v.ballots {
		if accept {
			yes++
		}
	}
	return yes > len(v.ballots)-yes
}

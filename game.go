package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"
)

type GamePhase int

const (
	PhaseForming GamePhase = iota
	PhaseInProgress
	PhaseFinished
)

// status returns the phase name used in game_status responses and
// list_games summaries.
func (p GamePhase) status() string {
	switch p {
	case PhaseInProgress:
		return "playing"
	case PhaseFinished:
		return "finished"
	default:
		return "waiting"
	}
}

// GameSummary is the registry's snapshot of one game for listings.
type GameSummary struct {
	Name     string `json:"name"`
	Creator  string `json:"creator"`
	Players  int    `json:"players"`
	Teams    int    `json:"teams"`
	Started  bool   `json:"started"`
	Finished bool   `json:"finished"`
}

// TeamInfo is one team's roster and position for list_teams.
type TeamInfo struct {
	Name     string   `json:"name"`
	Players  []string `json:"players"`
	Position int      `json:"position"`
}

// TeamPosition is one team's board state for game_status.
type TeamPosition struct {
	Team     string   `json:"team"`
	Position int      `json:"position"`
	Players  []string `json:"players"`
}

// delivery pairs a notification payload with the players it should
// reach. Game methods return deliveries instead of touching sessions,
// so fan-out happens after the game lock is released.
type delivery struct {
	players []string
	data    any
}

// rollResult is what the acting player gets back from a dice roll.
type rollResult struct {
	Roll        int
	NewPosition int
	NextTurn    string
	Finished    bool
	Winner      string
}

// Game holds one session's full state: roster, teams, pending join
// votes, and the turn machine. Every mutation happens under the game's
// own lock, held for the whole method, so unrelated games never block
// each other and vote resolution is atomic with team membership.
type Game struct {
	mu sync.RWMutex

	Name              string
	Creator           string
	MaxTeams          int
	MaxPlayersPerTeam int
	BoardLength       int
	MinDice           int
	MaxDice           int

	roster    map[string]bool
	teams     map[string]*Team
	votes     map[string]*joinVote
	turnOrder []string
	turn      int
	phase     GamePhase
	winner    string
	startedAt time.Time
	createdAt time.Time
}

// newGame validates the board parameters before any Game exists:
// 1 <= minDice <= maxDice < boardLength, at least one team slot, at
// least one player per team.
func newGame(name, creator string, maxTeams, maxPlayersPerTeam, boardLength, minDice, maxDice int) (*Game, error) {
	switch {
	case maxTeams < 1:
		return nil, fmt.Errorf("%w: max_teams must be at least 1", errInvalidParams)
	case maxPlayersPerTeam < 1:
		return nil, fmt.Errorf("%w: max_players_per_team must be at least 1", errInvalidParams)
	case minDice < 1:
		return nil, fmt.Errorf("%w: min_dice must be at least 1", errInvalidParams)
	case maxDice < minDice:
		return nil, fmt.Errorf("%w: max_dice must be at least min_dice", errInvalidParams)
	case boardLength <= maxDice:
		return nil, fmt.Errorf("%w: board_length must exceed max_dice", errInvalidParams)
	}

	return &Game{
		Name:              name,
		Creator:           creator,
		MaxTeams:          maxTeams,
		MaxPlayersPerTeam: maxPlayersPerTeam,
		BoardLength:       boardLength,
		MinDice:           minDice,
		MaxDice:           maxDice,
		roster:            map[string]bool{creator: true},
		teams:             make(map[string]*Team),
		votes:             make(map[string]*joinVote),
		createdAt:         time.Now(),
	}, nil
}

// teamOf returns the team a player belongs to, or nil. Callers hold
// the game lock.
func (g *Game) teamOf(player string) *Team {
	for _, t := range g.teams {
		if t.HasMember(player) {
			return t
		}
	}
	return nil
}

func (g *Game) rosterNames() []string {
	names := make([]string, 0, len(g.roster))
	for p := range g.roster {
		names = append(names, p)
	}
	return names
}

// AddPlayer joins a player to the roster. Late joins are rejected once
// the game has started.
func (g *Game) AddPlayer(player string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseForming {
		return fmt.Errorf("game %q: %w", g.Name, errAlreadyStarted)
	}
	if g.roster[player] {
		return fmt.Errorf("game %q: %w", g.Name, errAlreadyInGame)
	}
	g.roster[player] = true
	return nil
}

// RemovePlayer handles both explicit leaves and disconnect reaping.
// The leaver's team loses them, empty teams are pruned along with any
// votes that referenced them, and a pruned team drops out of the turn
// order. Closed reports that the creator left, empty that no players
// remain; the caller removes the game from the registry in either
// case.
func (g *Game) RemovePlayer(player string) (closed, empty bool, notes []delivery) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.roster, player)

	if t := g.teamOf(player); t != nil {
		t.RemoveMember(player)
		if len(t.Members) == 0 {
			g.pruneTeam(t.Name)
		} else {
			// Open polls lose the leaver's vote; one waiting only on
			// them resolves now instead of wedging forever.
			for id, v := range g.votes {
				if v.Team != t.Name {
					continue
				}
				v.dropVoter(player)
				if v.resolved() {
					delete(g.votes, id)
					notes = append(notes, g.resolveVoteLocked(v)...)
				}
			}
		}
	}

	// A poll the leaver opened can never resolve for them now.
	for id, v := range g.votes {
		if v.Candidate == player {
			delete(g.votes, id)
		}
	}

	closed = player == g.Creator
	empty = len(g.roster) == 0

	if closed && !empty {
		notes = append(notes, delivery{
			players: g.rosterNames(),
			data: gameClosedNote{
				Type:    "game_closed",
				Message: fmt.Sprintf("game %q was closed by its creator", g.Name),
			},
		})
	}

	return closed, empty, notes
}

// pruneTeam removes an empty team, its pending polls, and its slot in
// the turn order. Callers hold the game lock.
func (g *Game) pruneTeam(name string) {
	delete(g.teams, name)

	for id, v := range g.votes {
		if v.Team == name {
			delete(g.votes, id)
		}
	}

	idx := slices.Index(g.turnOrder, name)
	if idx < 0 {
		return
	}
	g.turnOrder = slices.Delete(g.turnOrder, idx, idx+1)
	if idx < g.turn {
		g.turn--
	}
	if len(g.turnOrder) > 0 {
		g.turn %= len(g.turnOrder)
	} else {
		g.turn = 0
	}
}

// CreateTeam adds a team with its creator as sole member and announces
// it to the whole game.
func (g *Game) CreateTeam(name, creator string) ([]delivery, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.phase != PhaseForming:
		return nil, fmt.Errorf("game %q: %w", g.Name, errAlreadyStarted)
	case len(g.teams) >= g.MaxTeams:
		return nil, fmt.Errorf("game %q: %w", g.Name, errCapacityExceeded)
	case g.teams[name] != nil:
		return nil, fmt.Errorf("team %q: %w", name, errAlreadyExists)
	case g.teamOf(creator) != nil:
		return nil, fmt.Errorf("player %q: %w", creator, errAlreadyOnTeam)
	}

	g.teams[name] = newTeam(name, creator)

	return []delivery{{
		players: g.rosterNames(),
		data: teamCreatedNote{
			Type:     "team_created",
			TeamName: name,
			Creator:  creator,
		},
	}}, nil
}

// RequestJoin starts a consent poll for the candidate, or joins them
// outright when the team has no members left to ask. The returned vote
// ID is empty iff the join was immediate.
func (g *Game) RequestJoin(teamName, candidate string) (voteID string, notes []delivery, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.teams[teamName]
	switch {
	case t == nil:
		return "", nil, fmt.Errorf("team %q: %w", teamName, errNotFound)
	case g.teamOf(candidate) != nil:
		return "", nil, fmt.Errorf("player %q: %w", candidate, errAlreadyOnTeam)
	case len(t.Members) >= g.MaxPlayersPerTeam:
		return "", nil, fmt.Errorf("team %q: %w", teamName, errTeamFull)
	}

	if len(t.Members) == 0 {
		t.AddMember(candidate)
		return "", []delivery{{
			players: slices.Clone(t.Members),
			data: memberAddedNote{
				Type:     "team_member_added",
				Player:   candidate,
				TeamName: teamName,
			},
		}}, nil
	}

	v := newJoinVote(g.Name, teamName, candidate, t.Members)
	g.votes[v.ID] = v

	return v.ID, []delivery{{
		players: slices.Clone(t.Members),
		data: voteRequestNote{
			Type:             "vote_request",
			VoteID:           v.ID,
			Message:          fmt.Sprintf("%s wants to join team %q, vote %q or %q", candidate, teamName, voteYes, voteNo),
			PlayerRequesting: candidate,
		},
	}}, nil
}

// CastVote records a ballot and, once the quorum is reached, resolves
// the poll under the same lock acquisition. Resolution deletes the
// entry first, so two last voters racing can never both resolve it,
// and a later vote for the same ID fails with not found.
func (g *Game) CastVote(voteID, voter string, accept bool) (resolved bool, notes []delivery, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := g.votes[voteID]
	if v == nil {
		return false, nil, fmt.Errorf("vote %q: %w", voteID, errNotFound)
	}

	if err := v.cast(voter, accept); err != nil {
		return false, nil, err
	}

	if !v.resolved() {
		return false, nil, nil
	}

	delete(g.votes, voteID)

	return true, g.resolveVoteLocked(v), nil
}

// resolveVoteLocked applies a completed poll's outcome. Callers hold
// the game lock and have already removed the entry from g.votes.
func (g *Game) resolveVoteLocked(v *joinVote) []delivery {
	var notes []delivery

	t := g.teams[v.Team]
	accepted := v.accepted()
	reason := ""

	// The world may have moved on while the poll was open.
	if accepted {
		switch {
		case t == nil:
			accepted, reason = false, fmt.Sprintf("team %q no longer exists", v.Team)
		case g.teamOf(v.Candidate) != nil:
			accepted, reason = false, fmt.Sprintf("%s already joined another team", v.Candidate)
		case len(t.Members) >= g.MaxPlayersPerTeam:
			accepted, reason = false, fmt.Sprintf("team %q filled up during the vote", v.Team)
		}
	}

	if accepted {
		t.AddMember(v.Candidate)
		notes = append(notes, delivery{
			players: slices.Clone(t.Members),
			data: memberAddedNote{
				Type:     "team_member_added",
				Player:   v.Candidate,
				TeamName: v.Team,
			},
		})
		notes = append(notes, delivery{
			players: []string{v.Candidate},
			data: joinResultNote{
				Type:    "team_join_result",
				Status:  "accepted",
				Message: fmt.Sprintf("you were accepted into team %q", v.Team),
			},
		})
	} else {
		if reason == "" {
			reason = fmt.Sprintf("the members of team %q voted against you", v.Team)
		}
		notes = append(notes, delivery{
			players: []string{v.Candidate},
			data: joinResultNote{
				Type:    "team_join_result",
				Status:  "rejected",
				Message: fmt.Sprintf("join request for team %q rejected: %s", v.Team, reason),
			},
		})
	}

	return notes
}

// startReadyLocked reports whether every roster player belongs to a
// team and has voted to start. Callers hold the game lock.
func (g *Game) startReadyLocked() bool {
	if len(g.teams) == 0 {
		return false
	}
	for p := range g.roster {
		t := g.teamOf(p)
		if t == nil || !t.StartVotes[p] {
			return false
		}
	}
	return true
}

// VoteStart registers a start vote. The game leaves FORMING only when
// the vote is unanimous across the whole roster and nobody is left
// without a team; the transition fixes the turn order and fires
// game_started at everyone.
func (g *Game) VoteStart(player string) (started bool, notes []delivery, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != PhaseForming {
		return false, nil, fmt.Errorf("game %q: %w", g.Name, errAlreadyStarted)
	}
	t := g.teamOf(player)
	if t == nil {
		return false, nil, fmt.Errorf("player %q: %w", player, errNotOnTeam)
	}

	t.StartVotes[player] = true

	if !g.startReadyLocked() {
		return false, nil, nil
	}

	g.turnOrder = shuffledTeamNames(g.teams)
	g.turn = 0
	g.phase = PhaseInProgress
	g.startedAt = time.Now()

	return true, []delivery{{
		players: g.rosterNames(),
		data: gameStartedNote{
			Type:      "game_started",
			Message:   fmt.Sprintf("game %q has started", g.Name),
			TurnOrder: slices.Clone(g.turnOrder),
			FirstTurn: g.turnOrder[0],
		},
	}}, nil
}

// shuffledTeamNames fixes the turn order with a crypto/rand
// Fisher-Yates pass over the team names.
func shuffledTeamNames(teams map[string]*Team) []string {
	names := make([]string, 0, len(teams))
	for name := range teams {
		names = append(names, name)
	}
	slices.Sort(names)

	for i := len(names) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			continue
		}
		j := int(n.Int64())
		names[i], names[j] = names[j], names[i]
	}
	return names
}

// RollDice resolves one turn for the acting player's team: one die per
// current member, summed onto the team position. Reaching the board
// length freezes the turn index and finishes the game; otherwise the
// turn passes to the next team.
func (g *Game) RollDice(player string, r *roller) (rollResult, []delivery, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.phase {
	case PhaseForming:
		return rollResult{}, nil, fmt.Errorf("game %q: %w", g.Name, errNotStarted)
	case PhaseFinished:
		return rollResult{}, nil, fmt.Errorf("game %q: %w", g.Name, errAlreadyFinished)
	}

	t := g.teamOf(player)
	if t == nil {
		return rollResult{}, nil, fmt.Errorf("player %q: %w", player, errNotOnTeam)
	}
	if t.Name != g.turnOrder[g.turn] {
		return rollResult{}, nil, fmt.Errorf("%w (current turn: %s)", errNotYourTurn, g.turnOrder[g.turn])
	}

	_, total := r.rollTeam(g.MinDice, g.MaxDice, len(t.Members))
	t.Position += total

	if t.Position >= g.BoardLength {
		g.phase = PhaseFinished
		g.winner = t.Name

		return rollResult{
				Roll:        total,
				NewPosition: t.Position,
				Finished:    true,
				Winner:      t.Name,
			}, []delivery{{
				players: g.rosterNames(),
				data: gameFinishedNote{
					Type:    "game_finished",
					Winner:  t.Name,
					Message: fmt.Sprintf("team %q has won", t.Name),
				},
			}}, nil
	}

	g.turn = (g.turn + 1) % len(g.turnOrder)
	next := g.turnOrder[g.turn]

	return rollResult{
			Roll:        total,
			NewPosition: t.Position,
			NextTurn:    next,
		}, []delivery{{
			players: g.rosterNames(),
			data: turnPlayedNote{
				Type:        "turn_played",
				Team:        t.Name,
				Player:      player,
				Roll:        total,
				NewPosition: t.Position,
				NextTurn:    next,
			},
		}}, nil
}

// Summary snapshots the game for list_games.
func (g *Game) Summary() GameSummary {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return GameSummary{
		Name:     g.Name,
		Creator:  g.Creator,
		Players:  len(g.roster),
		Teams:    len(g.teams),
		Started:  g.phase != PhaseForming,
		Finished: g.phase == PhaseFinished,
	}
}

// Teams snapshots team rosters and positions for list_teams.
func (g *Game) Teams() []TeamInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	infos := make([]TeamInfo, 0, len(g.teams))
	for _, t := range g.teams {
		infos = append(infos, TeamInfo{
			Name:     t.Name,
			Players:  slices.Clone(t.Members),
			Position: t.Position,
		})
	}
	slices.SortFunc(infos, func(a, b TeamInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos
}

// Status builds the phase-specific game_status response: start-vote
// progress while waiting, board positions once playing.
func (g *Game) Status() statusResponse {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.phase == PhaseForming {
		votes := 0
		for _, t := range g.teams {
			votes += len(t.StartVotes)
		}
		ready := g.startReadyLocked()
		return statusResponse{
			Status:       "ok",
			GameStatus:   g.phase.status(),
			Message:      "waiting for the game to start",
			VotesToStart: fmt.Sprintf("%d/%d", votes, len(g.roster)),
			CanStart:     &ready,
		}
	}

	positions := make([]TeamPosition, 0, len(g.teams))
	for _, t := range g.teams {
		positions = append(positions, TeamPosition{
			Team:     t.Name,
			Position: t.Position,
			Players:  slices.Clone(t.Members),
		})
	}
	slices.SortFunc(positions, func(a, b TeamPosition) int {
		return strings.Compare(a.Team, b.Team)
	})

	resp := statusResponse{
		Status:      "ok",
		GameStatus:  g.phase.status(),
		Positions:   positions,
		BoardLength: g.BoardLength,
		Winner:      g.winner,
	}
	if g.phase == PhaseInProgress {
		resp.CurrentTurn = g.turnOrder[g.turn]
	}
	return resp
}

// Result snapshots a finished game for the results recorder.
func (g *Game) Result() GameResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	res := GameResult{
		GameName:    g.Name,
		Winner:      g.winner,
		Players:     len(g.roster),
		Teams:       len(g.teams),
		BoardLength: g.BoardLength,
		FinishedAt:  time.Now(),
	}
	if !g.startedAt.IsZero() {
		res.Duration = time.Since(g.startedAt)
	}
	if t := g.teams[g.winner]; t != nil {
		res.WinningPosition = t.Position
	}
	return res
}

package main

import (
	"encoding/json"
	"fmt"
)

// The wire protocol is UTF-8 JSON, one object per message. Raw TCP
// clients terminate each object with a newline; websocket clients send
// one object per text message. Every client object carries a command;
// every server object is either the direct response to the last
// command (status "ok" or "error") or a push shaped
// {"type":"notification","data":{...}}.

const (
	voteYes = "si"
	voteNo  = "no"
)

// request is the decoded command envelope. Field requirements depend
// on the command and are checked at the boundary, so game logic never
// sees a half-formed message.
type request struct {
	Command           string `json:"command"`
	Name              string `json:"name,omitempty"`
	GameName          string `json:"game_name,omitempty"`
	MaxTeams          int    `json:"max_teams,omitempty"`
	MaxPlayersPerTeam int    `json:"max_players_per_team,omitempty"`
	BoardLength       int    `json:"board_length,omitempty"`
	MinDice           int    `json:"min_dice,omitempty"`
	MaxDice           int    `json:"max_dice,omitempty"`
	TeamName          string `json:"team_name,omitempty"`
	VoteID            string `json:"vote_id,omitempty"`
	Vote              string `json:"vote,omitempty"`
}

// decodeRequest rejects unknown shapes before they reach game logic.
func decodeRequest(data []byte) (*request, error) {
	req := &request{}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON", errMalformed)
	}

	missing := func(field string) error {
		return fmt.Errorf("%w: %s requires %q", errMalformed, req.Command, field)
	}

	switch req.Command {
	case "set_player_name":
		if req.Name == "" {
			return nil, missing("name")
		}
	case "create_game", "join_game":
		if req.GameName == "" {
			return nil, missing("game_name")
		}
	case "create_team", "join_team":
		if req.TeamName == "" {
			return nil, missing("team_name")
		}
	case "vote_team_join":
		if req.VoteID == "" {
			return nil, missing("vote_id")
		}
		if req.Vote != voteYes && req.Vote != voteNo {
			return nil, fmt.Errorf("%w: vote must be %q or %q", errMalformed, voteYes, voteNo)
		}
	case "list_games", "list_teams", "game_status", "vote_start", "roll_dice", "leave_game":
	default:
		return nil, fmt.Errorf("%w: unknown command %q", errMalformed, req.Command)
	}

	return req, nil
}

// Direct responses

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func newErrorResponse(err error) errorResponse {
	return errorResponse{Status: "error", Message: err.Error()}
}

type nameResponse struct {
	Status     string `json:"status"`
	PlayerName string `json:"player_name"`
}

// gameResponse reports the session's current game; a null value means
// the session no longer belongs to one.
type gameResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	CurrentGame *string `json:"current_game"`
}

type listGamesResponse struct {
	Status string        `json:"status"`
	Games  []GameSummary `json:"games"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type joinTeamResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	VoteID  string `json:"vote_id,omitempty"`
}

type listTeamsResponse struct {
	Status string     `json:"status"`
	Teams  []TeamInfo `json:"teams"`
}

type statusResponse struct {
	Status       string         `json:"status"`
	GameStatus   string         `json:"game_status"`
	Message      string         `json:"message,omitempty"`
	VotesToStart string         `json:"votes_to_start,omitempty"`
	CanStart     *bool          `json:"can_start,omitempty"`
	Positions    []TeamPosition `json:"positions,omitempty"`
	CurrentTurn  string         `json:"current_turn,omitempty"`
	BoardLength  int            `json:"board_length,omitempty"`
	Winner       string         `json:"winner,omitempty"`
}

type rollResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	Roll         int    `json:"roll"`
	NewPosition  int    `json:"new_position"`
	NextTurn     string `json:"next_turn,omitempty"`
	GameFinished bool   `json:"game_finished,omitempty"`
}

// Push notifications

type notification struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type teamCreatedNote struct {
	Type     string `json:"type"`
	TeamName string `json:"team_name"`
	Creator  string `json:"creator"`
}

type memberAddedNote struct {
	Type     string `json:"type"`
	Player   string `json:"player"`
	TeamName string `json:"team_name"`
}

type voteRequestNote struct {
	Type             string `json:"type"`
	VoteID           string `json:"vote_id"`
	Message          string `json:"message"`
	PlayerRequesting string `json:"player_requesting"`
}

type joinResultNote struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type gameStartedNote struct {
	Type      string   `json:"type"`
	Message   string   `json:"message"`
	TurnOrder []string `json:"turn_order"`
	FirstTurn string   `json:"first_turn"`
}

type turnPlayedNote struct {
	Type        string `json:"type"`
	Team        string `json:"team"`
	Player      string `json:"player"`
	Roll        int    `json:"roll"`
	NewPosition int    `json:"new_position"`
	NextTurn    string `json:"next_turn"`
}

type gameFinishedNote struct {
	Type    string `json:"type"`
	Winner  string `json:"winner"`
	Message string `json:"message"`
}

type gameClosedNote struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

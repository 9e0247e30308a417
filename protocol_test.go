package main

import (
	"errors"
	"testing"
)

func TestDecodeRequestValidation(t *testing.T) {
	valid := []string{
		`{"command":"set_player_name","name":"alice"}`,
		`{"command":"create_game","game_name":"race","max_teams":2,"max_players_per_team":2,"board_length":20,"min_dice":1,"max_dice":6}`,
		`{"command":"join_game","game_name":"race"}`,
		`{"command":"list_games"}`,
		`{"command":"create_team","team_name":"red"}`,
		`{"command":"join_team","team_name":"red"}`,
		`{"command":"vote_team_join","vote_id":"v1","vote":"si"}`,
		`{"command":"vote_team_join","vote_id":"v1","vote":"no"}`,
		`{"command":"list_teams"}`,
		`{"command":"game_status"}`,
		`{"command":"vote_start"}`,
		`{"command":"roll_dice"}`,
		`{"command":"leave_game"}`,
	}
	for _, line := range valid {
		if _, err := decodeRequest([]byte(line)); err != nil {
			t.Errorf("valid line rejected: %s: %v", line, err)
		}
	}

	malformed := []string{
		`not json at all`,
		`{"command":"fly_to_the_moon"}`,
		`{"no_command":"here"}`,
		`{"command":"set_player_name"}`,
		`{"command":"create_game"}`,
		`{"command":"join_game"}`,
		`{"command":"create_team"}`,
		`{"command":"join_team"}`,
		`{"command":"vote_team_join","vote":"si"}`,
		`{"command":"vote_team_join","vote_id":"v1","vote":"yes"}`,
	}
	for _, line := range malformed {
		if _, err := decodeRequest([]byte(line)); !errors.Is(err, errMalformed) {
			t.Errorf("malformed line accepted: %s (err=%v)", line, err)
		}
	}
}

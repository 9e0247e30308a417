/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"log"
	"time"
)

// Every failure a command can produce is one of these, wrapped with
// context where useful. They are recovered at the session boundary and
// surfaced as {"status":"error"} responses; none are fatal.
var (
	errNotFound         = errors.New("not found")
	errAlreadyExists    = errors.New("already exists")
	errCapacityExceeded = errors.New("no more teams can be created")
	errTeamFull         = errors.New("team is full")
	errAlreadyOnTeam    = errors.New("already on a team")
	errNotOnTeam        = errors.New("not on a team")
	errNotEligible      = errors.New("not eligible to vote")
	errNotYourTurn      = errors.New("not your team's turn")
	errAlreadyStarted   = errors.New("game already started")
	errNotStarted       = errors.New("game has not started")
	errAlreadyFinished  = errors.New("game already finished")
	errMalformed        = errors.New("malformed message")
	errNoPlayerName     = errors.New("no player name set")
	errNotInGame        = errors.New("not in a game")
	errAlreadyInGame    = errors.New("already in a game")
	errInvalidParams    = errors.New("invalid game parameters")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

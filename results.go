/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// GameResult is one finished game's outcome.
type GameResult struct {
	GameName        string        `db:"game_name" json:"game_name"`
	Winner          string        `db:"winner" json:"winner"`
	Players         int           `db:"players" json:"players"`
	Teams           int           `db:"teams" json:"teams"`
	BoardLength     int           `db:"board_length" json:"board_length"`
	WinningPosition int           `db:"winning_position" json:"winning_position"`
	Duration        time.Duration `db:"duration_ns" json:"-"`
	FinishedAt      time.Time     `db:"finished_at" json:"finished_at"`
}

// Recorder persists finished game results. Live game state is never
// persisted; only outcomes are, and only when --results-db is set.
type Recorder interface {
	RecordResult(res GameResult) error
	Recent(limit int) ([]GameResult, error)
	Close() error
}

func newRecorder(cfg *Config) (Recorder, error) {
	if cfg.resultsDB == "" {
		return discardRecorder{}, nil
	}
	return newSqliteRecorder(cfg.resultsDB)
}

// discardRecorder drops results on the floor.
type discardRecorder struct{}

func (discardRecorder) RecordResult(GameResult) error    { return nil }
func (discardRecorder) Recent(int) ([]GameResult, error) { return nil, nil }
func (discardRecorder) Close() error                     { return nil }

const resultsSchema = `CREATE TABLE IF NOT EXISTS results (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  game_name TEXT NOT NULL,
  winner TEXT NOT NULL,
  players INTEGER NOT NULL,
  teams INTEGER NOT NULL,
  board_length INTEGER NOT NULL,
  winning_position INTEGER NOT NULL,
  duration_ns INTEGER NOT NULL,
  finished_at TIMESTAMP NOT NULL
);`

type sqliteRecorder struct {
	db *sqlx.DB
}

func newSqliteRecorder(path string) (*sqliteRecorder, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(resultsSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteRecorder{db: db}, nil
}

func (r *sqliteRecorder) RecordResult(res GameResult) error {
	_, err := r.db.NamedExec(`INSERT INTO results
		(game_name, winner, players, teams, board_length, winning_position, duration_ns, finished_at)
		VALUES (:game_name, :winner, :players, :teams, :board_length, :winning_position, :duration_ns, :finished_at)`,
		res)
	return err
}

func (r *sqliteRecorder) Recent(limit int) ([]GameResult, error) {
	results := []GameResult{}
	err := r.db.Select(&results,
		`SELECT game_name, winner, players, teams, board_length, winning_position, duration_ns, finished_at
		 FROM results ORDER BY finished_at DESC LIMIT ?`, limit)
	return results, err
}

func (r *sqliteRecorder) Close() error {
	return r.db.Close()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
)

// Server owns the process's shared state: the game registry, the
// roller, the results recorder, and the table of reachable sessions.
// It is constructed explicitly in Serve and passed down; there is no
// ambient global.
type Server struct {
	cfg      *Config
	registry *GameRegistry
	roller   *roller
	recorder Recorder

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewServer(cfg *Config, rec Recorder) *Server {
	return &Server{
		cfg:      cfg,
		registry: newGameRegistry(),
		roller:   newRoller(cfg.seed),
		recorder: rec,
		sessions: make(map[string]*Session),
	}
}

// registerSession claims a player name for a session. Names are the
// only identity there is, so a name held by a live session cannot be
// taken by another.
func (s *Server) registerSession(name string, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if other, exists := s.sessions[name]; exists && other != sess {
		return fmt.Errorf("player name %q: %w", name, errAlreadyExists)
	}
	if sess.player != "" && sess.player != name {
		delete(s.sessions, sess.player)
	}
	s.sessions[name] = sess
	return nil
}

// dropSession removes a session from the reachable-for-notification
// set. Future sends to that player become no-ops.
func (s *Server) dropSession(sess *Session) {
	name := sess.playerName()
	if name == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessions[name] == sess {
		delete(s.sessions, name)
	}
}

// fanOut pushes notifications to every named player that still has a
// live session. A full queue drops the player from the reachable set,
// exactly like a failed write.
func (s *Server) fanOut(notes []delivery) {
	for _, d := range notes {
		for _, player := range d.players {
			s.mu.RLock()
			sess := s.sessions[player]
			s.mu.RUnlock()

			if sess == nil {
				continue
			}
			if !sess.enqueue(notification{Type: "notification", Data: d.data}) {
				s.dropSession(sess)
			}
		}
	}
}

// currentGame resolves the session's game. A stale reference to a
// closed game is cleared on the spot, so a player whose game vanished
// underneath them just looks like they are not in one.
func (s *Server) currentGame(sess *Session) (*Game, error) {
	if sess.game == "" {
		return nil, errNotInGame
	}
	g, err := s.registry.Get(sess.game)
	if err != nil {
		sess.game = ""
		return nil, errNotInGame
	}
	return g, nil
}

// leaveGame runs the shared leave path for explicit leaves and
// disconnects: remove the player, prune what emptied, and close the
// game when its creator left.
func (s *Server) leaveGame(sess *Session) []delivery {
	if sess.game == "" {
		return nil
	}
	g, err := s.registry.Get(sess.game)
	sess.game = ""
	if err != nil {
		return nil
	}

	closed, empty, notes := g.RemovePlayer(sess.player)
	if closed || empty {
		s.registry.Remove(g.Name)
		logf(s.cfg, "GAMES: Removed game %q (closed=%t empty=%t)", g.Name, closed, empty)
	}
	return notes
}

// dispatch runs one command and returns the direct response plus any
// notifications it caused. The caller enqueues the response before
// fanning the notifications out.
func (s *Server) dispatch(sess *Session, req *request) (any, []delivery) {
	// Only these two make sense before a name is set.
	if sess.player == "" && req.Command != "set_player_name" && req.Command != "list_games" {
		return newErrorResponse(errNoPlayerName), nil
	}

	switch req.Command {
	case "set_player_name":
		return s.handleSetPlayerName(sess, req), nil

	case "create_game":
		return s.handleCreateGame(sess, req), nil

	case "join_game":
		return s.handleJoinGame(sess, req), nil

	case "list_games":
		return listGamesResponse{Status: "ok", Games: s.registry.List()}, nil

	case "create_team":
		return s.handleCreateTeam(sess, req)

	case "join_team":
		return s.handleJoinTeam(sess, req)

	case "vote_team_join":
		return s.handleVoteTeamJoin(sess, req)

	case "list_teams":
		g, err := s.currentGame(sess)
		if err != nil {
			return newErrorResponse(err), nil
		}
		return listTeamsResponse{Status: "ok", Teams: g.Teams()}, nil

	case "game_status":
		g, err := s.currentGame(sess)
		if err != nil {
			return newErrorResponse(err), nil
		}
		return g.Status(), nil

	case "vote_start":
		return s.handleVoteStart(sess)

	case "roll_dice":
		return s.handleRollDice(sess)

	case "leave_game":
		if sess.game == "" {
			return newErrorResponse(errNotInGame), nil
		}
		notes := s.leaveGame(sess)
		return gameResponse{Status: "ok", Message: "left the game", CurrentGame: nil}, notes
	}

	// decodeRequest already rejected unknown commands.
	return newErrorResponse(errMalformed), nil
}

func (s *Server) handleSetPlayerName(sess *Session, req *request) any {
	if sess.game != "" {
		return newErrorResponse(fmt.Errorf("cannot rename while in a game: %w", errAlreadyInGame))
	}
	if err := s.registerSession(req.Name, sess); err != nil {
		return newErrorResponse(err)
	}
	sess.setPlayer(req.Name)
	logf(s.cfg, "PLAYERS: %q connected", req.Name)
	return nameResponse{Status: "ok", PlayerName: req.Name}
}

func (s *Server) handleCreateGame(sess *Session, req *request) any {
	if sess.game != "" {
		return newErrorResponse(errAlreadyInGame)
	}

	g, err := newGame(req.GameName, sess.player, req.MaxTeams, req.MaxPlayersPerTeam,
		req.BoardLength, req.MinDice, req.MaxDice)
	if err != nil {
		return newErrorResponse(err)
	}
	if err := s.registry.Create(g); err != nil {
		return newErrorResponse(err)
	}

	sess.game = g.Name
	logf(s.cfg, "GAMES: %q created game %q", sess.player, g.Name)

	name := g.Name
	return gameResponse{
		Status:      "ok",
		Message:     fmt.Sprintf("game %q created", g.Name),
		CurrentGame: &name,
	}
}

func (s *Server) handleJoinGame(sess *Session, req *request) any {
	if sess.game != "" {
		return newErrorResponse(errAlreadyInGame)
	}

	g, err := s.registry.Get(req.GameName)
	if err != nil {
		return newErrorResponse(err)
	}
	if err := g.AddPlayer(sess.player); err != nil {
		return newErrorResponse(err)
	}

	sess.game = g.Name
	name := g.Name
	return gameResponse{
		Status:      "ok",
		Message:     fmt.Sprintf("joined game %q", g.Name),
		CurrentGame: &name,
	}
}

func (s *Server) handleCreateTeam(sess *Session, req *request) (any, []delivery) {
	g, err := s.currentGame(sess)
	if err != nil {
		return newErrorResponse(err), nil
	}

	notes, err := g.CreateTeam(req.TeamName, sess.player)
	if err != nil {
		return newErrorResponse(err), nil
	}
	return messageResponse{
		Status:  "ok",
		Message: fmt.Sprintf("team %q created", req.TeamName),
	}, notes
}

func (s *Server) handleJoinTeam(sess *Session, req *request) (any, []delivery) {
	g, err := s.currentGame(sess)
	if err != nil {
		return newErrorResponse(err), nil
	}

	voteID, notes, err := g.RequestJoin(req.TeamName, sess.player)
	if err != nil {
		return newErrorResponse(err), nil
	}

	if voteID == "" {
		return joinTeamResponse{
			Status:  "ok",
			Message: fmt.Sprintf("joined team %q", req.TeamName),
		}, notes
	}
	return joinTeamResponse{
		Status:  "ok",
		Message: fmt.Sprintf("join request sent to team %q, awaiting votes", req.TeamName),
		VoteID:  voteID,
	}, notes
}

func (s *Server) handleVoteTeamJoin(sess *Session, req *request) (any, []delivery) {
	g, err := s.currentGame(sess)
	if err != nil {
		return newErrorResponse(err), nil
	}

	resolved, notes, err := g.CastVote(req.VoteID, sess.player, req.Vote == voteYes)
	if err != nil {
		return newErrorResponse(err), nil
	}

	msg := "vote recorded, waiting for more votes"
	if resolved {
		msg = "vote recorded, poll resolved"
	}
	return messageResponse{Status: "ok", Message: msg}, notes
}

func (s *Server) handleVoteStart(sess *Session) (any, []delivery) {
	g, err := s.currentGame(sess)
	if err != nil {
		return newErrorResponse(err), nil
	}

	started, notes, err := g.VoteStart(sess.player)
	if err != nil {
		return newErrorResponse(err), nil
	}

	msg := "vote recorded, waiting for the rest of the lobby"
	if started {
		msg = "the game has started"
		logf(s.cfg, "GAMES: Game %q started", g.Name)
	}
	return messageResponse{Status: "ok", Message: msg}, notes
}

func (s *Server) handleRollDice(sess *Session) (any, []delivery) {
	g, err := s.currentGame(sess)
	if err != nil {
		return newErrorResponse(err), nil
	}

	result, notes, err := g.RollDice(sess.player, s.roller)
	if err != nil {
		return newErrorResponse(err), nil
	}

	resp := rollResponse{
		Status:      "ok",
		Message:     fmt.Sprintf("your team advanced %d positions", result.Roll),
		Roll:        result.Roll,
		NewPosition: result.NewPosition,
		NextTurn:    result.NextTurn,
	}

	if result.Finished {
		resp.Message = fmt.Sprintf("team %q has won", result.Winner)
		resp.GameFinished = true

		if err := s.recorder.RecordResult(g.Result()); err != nil {
			logf(s.cfg, "ERROR: recording result for %q: %v", g.Name, err)
		}
	}

	return resp, notes
}

// handleConn runs one connection: a write pump goroutine plus the
// reader loop on the current goroutine. Raw TCP and websocket clients
// both end up here.
func (s *Server) handleConn(conn transport) {
	sess := newSession(s, conn)
	go sess.writePump()
	sess.readLoop()
}

// acceptLoop hands each TCP connection its own goroutine.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logf(s.cfg, "ERROR: accept: %v", err)
			}
			return
		}

		logf(s.cfg, "CONNECT: %s", conn.RemoteAddr())
		go s.handleConn(newLineTransport(conn))
	}
}

// Serve brings up the TCP game listener and, unless disabled, the
// HTTP status pages, then blocks until the context is cancelled or a
// shutdown signal arrives.
func Serve(ctx context.Context, cfg *Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logf(cfg, "START: teamrace v%s", releaseVersion)

	recorder, err := newRecorder(cfg)
	if err != nil {
		return err
	}
	defer recorder.Close()

	srv := NewServer(cfg, recorder)

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)))
	if err != nil {
		return err
	}
	logf(cfg, "SERVE: Game protocol on %s", ln.Addr())
	go srv.acceptLoop(ln)

	stopWeb := func() {}
	if cfg.httpPort > 0 {
		stopWeb, err = serveWeb(cfg, srv)
		if err != nil {
			_ = ln.Close()
			return err
		}
	}

	<-ctx.Done()

	_ = ln.Close()
	stopWeb()

	return nil
}

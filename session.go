// Quipbox prompt game session.
//
// Each game ID owns one Session: players join with a display name, the host
// shares the link, and once an even lobby of four or more presses start, the
// session walks a precomputed schedule of rounds. Every round pairs players
// off against the same prompt; both write an answer, then the lobby votes on
// each pairing in turn, 100 points per vote to the answer's author.
//
// The session is driven entirely by its hub goroutine: inbound client
// messages, timer firings and the dedupe ticker all funnel through one
// select loop, so there is exactly one writer. Phase-advancing timers carry
// a generation stamp; a firing whose stamp no longer matches the session's
// counter is stale and ignored, which gives cancellation semantics without
// tracking timer handles.

package main

import (
	"time"
)

type Phase string

const (
	PhasePregame       Phase = "pregame"
	PhaseAnswering     Phase = "answering"
	PhaseVoting        Phase = "voting"
	PhaseVotingResults Phase = "voting_results"
	PhaseRoundResults  Phase = "round_results"
	PhaseFinished      Phase = "finished"
)

const (
	minPlayers    = 4
	pointsPerVote = 100

	// how long a stalled vote waits before auto-advancing once fewer
	// than three players remain connected
	shortAdvanceDelay = 2 * time.Second
)

type timerKind int

const (
	timerStartVoting timerKind = iota // answer-completion grace delay
	timerCloseQuestion                // voting timeout / stall auto-advance
	timerNextQuestion                 // results-display delay
	timerNextRound                    // inter-round delay
)

type timerEvent struct {
	kind timerKind
	gen  uint64
}

// sender is the transport surface the session needs: deliver one message to
// one connection, or to everyone. The hub implements it over websockets;
// tests implement it with a recorder.
type sender interface {
	sendTo(playerID string, msg any)
	broadcast(msg any)
}

// scheduleFunc arms a timer that must eventually post a timerEvent with the
// given stamp back into the session's event loop.
type scheduleFunc func(kind timerKind, d time.Duration, gen uint64)

// Session is the authoritative state of one game. All methods must be
// called from the owning hub's run loop.
type Session struct {
	cfg      *Config
	out      sender
	schedule scheduleFunc

	phase        Phase
	players      []*Player
	disconnected map[string]*DisconnectedPlayer
	prompts      []string
	rounds       [][]Question
	round        int
	question     int
	answers      []*Answer
	voted        map[string]bool
	votes        int

	gen         uint64
	roundEnding bool
}

func newSession(cfg *Config, out sender, schedule scheduleFunc) *Session {
	return &Session{
		cfg:          cfg,
		out:          out,
		schedule:     schedule,
		phase:        PhasePregame,
		disconnected: make(map[string]*DisconnectedPlayer),
		prompts:      append([]string(nil), cfg.prompts...),
	}
}

// arm supersedes any pending phase-advance timer: the bumped generation
// makes earlier firings stale. At most one such timer is ever live.
func (s *Session) arm(kind timerKind, d time.Duration) {
	s.gen++
	s.schedule(kind, d, s.gen)
}

// cancelTimers invalidates all pending phase-advance timers.
func (s *Session) cancelTimers() {
	s.gen++
}

func (s *Session) onTimer(ev timerEvent) {
	if ev.gen != s.gen {
		return
	}

	switch ev.kind {
	case timerStartVoting:
		s.startVoting()
	case timerCloseQuestion:
		s.closeQuestion()
	case timerNextQuestion:
		s.advanceQuestion()
	case timerNextRound:
		s.nextRound()
	}
}

// startGame handles a player's start_game request. Refusals are addressed
// to the requester and leave the session untouched.
func (s *Session) startGame(playerID string) {
	switch {
	case s.phase != PhasePregame:
		s.out.sendTo(playerID, SimpleMessage{
			Type:    "start_refused",
			Message: "A game is already in progress.",
		})
		return
	case len(s.players) < minPlayers:
		s.out.sendTo(playerID, SimpleMessage{
			Type:    "start_refused",
			Message: "At least four players are needed to start.",
		})
		return
	case len(s.players)%2 != 0:
		s.out.sendTo(playerID, SimpleMessage{
			Type:    "start_refused",
			Message: "An even number of players is needed to start.",
		})
		return
	}

	for _, p := range s.players {
		p.Score = 0
	}

	s.rounds = buildSchedule(s.players, s.prompts, s.cfg.rounds)
	s.round = 0
	s.roundEnding = false

	s.startRound()
}

// startRound opens the answering phase for s.round and hands each player
// their first assigned prompt.
func (s *Session) startRound() {
	s.phase = PhaseAnswering
	s.answers = nil
	s.voted = nil
	s.votes = 0
	s.question = 0
	s.cancelTimers()

	s.out.broadcast(RoundStartedMessage{
		Type:  "round_started",
		Round: s.round + 1,
	})

	for _, p := range s.players {
		s.deliverNextPrompt(p)
	}

	s.pushState()
}

func (s *Session) startVoting() {
	s.question = 0
	s.openVoting()
}

// openVoting opens the current question for votes, or ends the round if no
// question remains (including the disconnect-induced empty-round case).
func (s *Session) openVoting() {
	q, ok := s.currentQuestion()
	if !ok {
		s.endRound()
		return
	}

	s.phase = PhaseVoting
	s.votes = 0
	s.voted = make(map[string]bool)

	s.out.broadcast(VotingMessage{
		Type:    "voting",
		Prompt:  q.Prompt,
		Answers: s.answersFor(q.Prompt),
	})

	s.arm(timerCloseQuestion, s.cfg.votingTimeout)
	s.pushState()
}

// closeQuestion ends voting on the current question, on early completion,
// timeout, or forced advance, and shows the tally for a fixed delay.
func (s *Session) closeQuestion() {
	q, ok := s.currentQuestion()
	if !ok {
		s.endRound()
		return
	}

	s.phase = PhaseVotingResults

	s.out.broadcast(VotingResultsMessage{
		Type:    "voting_results",
		Prompt:  q.Prompt,
		Answers: s.answersFor(q.Prompt),
	})

	s.arm(timerNextQuestion, s.cfg.resultsDelay)
	s.pushState()
}

func (s *Session) advanceQuestion() {
	s.question++
	s.openVoting()
}

// endRound shows the scoreboard and schedules the next round. The guard
// flag keeps a racing timer and a forced advance from entering it twice.
func (s *Session) endRound() {
	if s.roundEnding {
		return
	}
	s.roundEnding = true

	s.phase = PhaseRoundResults

	s.out.broadcast(ScoreboardMessage{
		Type:    "round_ended",
		Players: s.scoreboard(),
	})

	s.arm(timerNextRound, s.cfg.roundDelay)
	s.pushState()
}

func (s *Session) nextRound() {
	s.roundEnding = false
	s.round++

	if s.round >= len(s.rounds) {
		s.finish()
		return
	}

	s.startRound()
}

func (s *Session) finish() {
	s.phase = PhaseFinished
	s.cancelTimers()

	s.out.broadcast(ScoreboardMessage{
		Type:    "game_ended",
		Players: s.scoreboard(),
	})

	s.pushState()
}

// reset returns the session to pregame from any phase, discarding the
// roster, the disconnected set and the schedule.
func (s *Session) reset() {
	s.phase = PhasePregame
	s.players = nil
	s.disconnected = make(map[string]*DisconnectedPlayer)
	s.rounds = nil
	s.round = 0
	s.question = 0
	s.answers = nil
	s.voted = nil
	s.votes = 0
	s.roundEnding = false
	s.cancelTimers()

	s.broadcastRoster()
	s.pushState()
}

// forceVoting is the host override for a stalled answering phase.
func (s *Session) forceVoting() {
	if s.phase != PhaseAnswering {
		return
	}
	s.startVoting()
}

// forceNextQuestion is the host override for a stalled vote.
func (s *Session) forceNextQuestion() {
	switch s.phase {
	case PhaseVoting:
		s.closeQuestion()
	case PhaseVotingResults:
		s.advanceQuestion()
	}
}

func (s *Session) setPrompts(prompts []string) {
	if len(prompts) == 0 {
		return
	}
	s.prompts = append([]string(nil), prompts...)
}

// currentQuestion guards every "current question" lookup against an
// out-of-range index or an absent round.
func (s *Session) currentQuestion() (Question, bool) {
	if s.round < 0 || s.round >= len(s.rounds) {
		return Question{}, false
	}
	qs := s.rounds[s.round]
	if s.question < 0 || s.question >= len(qs) {
		return Question{}, false
	}
	return qs[s.question], true
}

// continuationCheck runs after every mid-game disconnect. Below two active
// players the game announces a pause; below three during voting the vote
// threshold can no longer be met, so the question auto-advances shortly.
func (s *Session) continuationCheck() {
	if len(s.players) < 2 {
		s.out.broadcast(SimpleMessage{
			Type:    "paused",
			Message: "Not enough players remain connected; waiting for players to rejoin.",
		})
	}

	if s.phase == PhaseVoting && len(s.players) < 3 {
		s.arm(timerCloseQuestion, shortAdvanceDelay)
	}
}

func (s *Session) voteThreshold() int {
	if n := len(s.players) - 2; n > 1 {
		return n
	}
	return 1
}

package main

import (
	"fmt"
	"testing"
	"time"
)

type sentMsg struct {
	to  string // empty for broadcasts
	msg any
}

type fakeOut struct {
	msgs []sentMsg
}

func (f *fakeOut) sendTo(playerID string, msg any) {
	f.msgs = append(f.msgs, sentMsg{to: playerID, msg: msg})
}

func (f *fakeOut) broadcast(msg any) {
	f.msgs = append(f.msgs, sentMsg{msg: msg})
}

type armedTimer struct {
	kind timerKind
	d    time.Duration
	gen  uint64
}

// testRig drives a Session directly, recording outbound messages and armed
// timers so tests can fire phase advances by hand.
type testRig struct {
	s      *Session
	out    *fakeOut
	timers []armedTimer
}

func newTestRig() *testRig {
	cfg := &Config{
		rounds: 1,
		prompts: []string{
			"prompt one", "prompt two", "prompt three", "prompt four",
			"prompt five", "prompt six", "prompt seven", "prompt eight",
		},
		answerGrace:   3 * time.Second,
		votingTimeout: 30 * time.Second,
		resultsDelay:  8 * time.Second,
		roundDelay:    10 * time.Second,
	}

	rig := &testRig{out: &fakeOut{}}
	rig.s = newSession(cfg, rig.out, func(kind timerKind, d time.Duration, gen uint64) {
		rig.timers = append(rig.timers, armedTimer{kind: kind, d: d, gen: gen})
	})
	return rig
}

// liveTimer returns the most recently armed timer if its stamp is still
// current.
func (r *testRig) liveTimer() (armedTimer, bool) {
	if len(r.timers) == 0 {
		return armedTimer{}, false
	}
	last := r.timers[len(r.timers)-1]
	return last, last.gen == r.s.gen
}

func (r *testRig) fire(t *testing.T, kind timerKind) {
	t.Helper()

	last, live := r.liveTimer()
	if !live {
		t.Fatalf("no live timer to fire (want kind %d)", kind)
	}
	if last.kind != kind {
		t.Fatalf("live timer has kind %d, want %d", last.kind, kind)
	}
	r.s.onTimer(timerEvent{kind: last.kind, gen: last.gen})
}

func (r *testRig) joinAll(names ...string) {
	for i, name := range names {
		r.s.join(fmt.Sprintf("conn%d", i), name)
	}
}

func (r *testRig) byName(t *testing.T, name string) *Player {
	t.Helper()
	for _, p := range r.s.players {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("no active player named %q", name)
	return nil
}

// answerAll submits one answer per assigned player for the current round.
func (r *testRig) answerAll(t *testing.T) {
	t.Helper()
	for _, q := range r.s.rounds[r.s.round] {
		for _, name := range q.Players {
			r.s.submitAnswer(r.byName(t, name).ID, q.Prompt, "answer by "+name)
		}
	}
}

// castVotes casts n valid votes on the current question from players who
// have not voted yet, all for the question's first answer.
func (r *testRig) castVotes(t *testing.T, n int) {
	t.Helper()
	q, ok := r.s.currentQuestion()
	if !ok {
		t.Fatal("no current question to vote on")
	}
	answers := r.s.answersFor(q.Prompt)
	if len(answers) == 0 {
		t.Fatalf("no answers recorded for prompt %q", q.Prompt)
	}

	cast := 0
	for _, p := range r.s.players {
		if cast == n {
			return
		}
		if r.s.voted[p.ID] {
			continue
		}
		r.s.vote(p.ID, answers[0].PlayerID)
		cast++
	}
	if cast != n {
		t.Fatalf("could only cast %d of %d votes", cast, n)
	}
}

func (f *fakeOut) lastBroadcastOfType(msgType string) (any, bool) {
	for i := len(f.msgs) - 1; i >= 0; i-- {
		m := f.msgs[i]
		if m.to != "" {
			continue
		}
		switch v := m.msg.(type) {
		case SimpleMessage:
			if v.Type == msgType {
				return v, true
			}
		case ScoreboardMessage:
			if v.Type == msgType {
				return v, true
			}
		case RosterMessage:
			if v.Type == msgType {
				return v, true
			}
		case VotingMessage:
			if v.Type == msgType {
				return v, true
			}
		case VotingResultsMessage:
			if v.Type == msgType {
				return v, true
			}
		}
	}
	return nil, false
}

func (f *fakeOut) lastSentTo(playerID string) (any, bool) {
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].to == playerID {
			return f.msgs[i].msg, true
		}
	}
	return nil, false
}

func TestStartRefusedOddCount(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben", "cam", "dee", "eli")

	rig.s.startGame("conn0")

	if rig.s.phase != PhasePregame {
		t.Fatalf("phase = %q after refused start, want pregame", rig.s.phase)
	}
	if rig.s.rounds != nil {
		t.Fatal("schedule built despite refused start")
	}
	if len(rig.s.players) != 5 {
		t.Fatalf("roster mutated by refused start: %d players", len(rig.s.players))
	}

	msg, ok := rig.out.lastSentTo("conn0")
	if !ok {
		t.Fatal("no message addressed to the requester")
	}
	if sm, ok := msg.(SimpleMessage); !ok || sm.Type != "start_refused" {
		t.Fatalf("requester got %#v, want start_refused", msg)
	}
}

func TestStartRefusedTooFewPlayers(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben")

	rig.s.startGame("conn0")

	if rig.s.phase != PhasePregame {
		t.Fatalf("phase = %q, want pregame", rig.s.phase)
	}
}

func TestFullSingleRoundGame(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben", "cam", "dee")

	rig.s.startGame("conn0")

	if rig.s.phase != PhaseAnswering {
		t.Fatalf("phase = %q after start, want answering", rig.s.phase)
	}
	if len(rig.s.rounds) != 1 || len(rig.s.rounds[0]) != 2 {
		t.Fatalf("schedule = %d rounds / %d questions, want 1/2", len(rig.s.rounds), len(rig.s.rounds[0]))
	}

	// Every player gets exactly one prompt at round start.
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("conn%d", i)
		prompts := 0
		for _, m := range rig.out.msgs {
			if m.to == id {
				if _, ok := m.msg.(PromptMessage); ok {
					prompts++
				}
			}
		}
		if prompts != 1 {
			t.Fatalf("%s received %d prompts at round start, want 1", id, prompts)
		}
	}

	// Three answers do not complete the round.
	qs := rig.s.rounds[0]
	rig.s.submitAnswer(rig.byName(t, qs[0].Players[0]).ID, qs[0].Prompt, "a")
	rig.s.submitAnswer(rig.byName(t, qs[0].Players[1]).ID, qs[0].Prompt, "b")
	rig.s.submitAnswer(rig.byName(t, qs[1].Players[0]).ID, qs[1].Prompt, "c")
	if _, live := rig.liveTimer(); live {
		t.Fatal("grace timer armed before all answers were in")
	}

	rig.s.submitAnswer(rig.byName(t, qs[1].Players[1]).ID, qs[1].Prompt, "d")
	timer, live := rig.liveTimer()
	if !live || timer.kind != timerStartVoting {
		t.Fatalf("after final answer: live=%v kind=%d, want live grace timer", live, timer.kind)
	}
	if rig.s.phase != PhaseAnswering {
		t.Fatalf("phase advanced to %q before the grace delay", rig.s.phase)
	}

	rig.fire(t, timerStartVoting)
	if rig.s.phase != PhaseVoting || rig.s.question != 0 {
		t.Fatalf("phase=%q question=%d, want voting on question 0", rig.s.phase, rig.s.question)
	}

	// Threshold for 4 active players is max(1, 4-2) = 2.
	rig.castVotes(t, 1)
	if rig.s.phase != PhaseVoting {
		t.Fatalf("question closed after 1 of 2 votes")
	}
	rig.castVotes(t, 1)
	if rig.s.phase != PhaseVotingResults {
		t.Fatalf("phase=%q after threshold votes, want voting_results", rig.s.phase)
	}

	// Votes after closure are impossible.
	votesBefore := rig.s.votes
	rig.s.vote("conn3", "conn0")
	if rig.s.votes != votesBefore {
		t.Fatal("vote accepted after question closed")
	}

	rig.fire(t, timerNextQuestion)
	if rig.s.phase != PhaseVoting || rig.s.question != 1 {
		t.Fatalf("phase=%q question=%d, want voting on question 1", rig.s.phase, rig.s.question)
	}

	// Projection is phase-tagged and carries the open question.
	state := rig.s.projectedState()
	if state.Phase != PhaseVoting || state.Prompt == "" || len(state.Answers) != 2 {
		t.Fatalf("projection %#v missing voting detail", state)
	}

	rig.castVotes(t, 2)
	if rig.s.phase != PhaseVotingResults {
		t.Fatalf("phase=%q, want voting_results", rig.s.phase)
	}

	rig.fire(t, timerNextQuestion)
	if rig.s.phase != PhaseRoundResults {
		t.Fatalf("phase=%q after last question, want round_results", rig.s.phase)
	}

	rig.fire(t, timerNextRound)
	if rig.s.phase != PhaseFinished {
		t.Fatalf("phase=%q after last round, want finished", rig.s.phase)
	}

	msg, ok := rig.out.lastBroadcastOfType("game_ended")
	if !ok {
		t.Fatal("no game_ended broadcast")
	}
	final := msg.(ScoreboardMessage)
	for i := 1; i < len(final.Players); i++ {
		if final.Players[i-1].Score < final.Players[i].Score {
			t.Fatalf("final scoreboard not sorted by descending score: %#v", final.Players)
		}
	}

	// Score conservation: 4 votes cast, 100 points each.
	total := 0
	for _, p := range rig.s.players {
		total += p.Score
	}
	if total != 4*pointsPerVote {
		t.Fatalf("total score = %d, want %d", total, 4*pointsPerVote)
	}
}

func TestDuplicateAnswerIgnored(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben", "cam", "dee")
	rig.s.startGame("conn0")

	q := rig.s.rounds[0][0]
	p := rig.byName(t, q.Players[0])

	rig.s.submitAnswer(p.ID, q.Prompt, "first")
	rig.s.submitAnswer(p.ID, q.Prompt, "second")

	if len(rig.s.answers) != 1 {
		t.Fatalf("ledger holds %d answers after duplicate submit, want 1", len(rig.s.answers))
	}
	if rig.s.answers[0].Text != "first" {
		t.Fatalf("duplicate submit overwrote answer: %q", rig.s.answers[0].Text)
	}
}

func TestUnassignedPromptIgnored(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben", "cam", "dee")
	rig.s.startGame("conn0")

	q := rig.s.rounds[0][0]
	var outsider *Player
	for _, p := range rig.s.players {
		if !q.names(p.Name) {
			outsider = p
			break
		}
	}

	rig.s.submitAnswer(outsider.ID, q.Prompt, "not my prompt")
	if len(rig.s.answers) != 0 {
		t.Fatal("answer accepted for an unassigned prompt")
	}
}

func TestVoteScoresAuthorNotVoter(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben", "cam", "dee")
	rig.s.startGame("conn0")
	rig.answerAll(t)
	rig.fire(t, timerStartVoting)

	q, _ := rig.s.currentQuestion()
	answers := rig.s.answersFor(q.Prompt)
	author := answers[0].PlayerID

	var voter *Player
	for _, p := range rig.s.players {
		if p.ID != author {
			voter = p
			break
		}
	}

	rig.s.vote(voter.ID, author)

	if voter.Score != 0 {
		t.Fatalf("voter gained %d points, want 0", voter.Score)
	}
	if owner := rig.s.findPlayer(author); owner.Score != pointsPerVote {
		t.Fatalf("author has %d points after one vote, want %d", owner.Score, pointsPerVote)
	}
}

func TestVoteOneShotPerQuestion(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben", "cam", "dee", "eli", "fay")
	rig.s.startGame("conn0")
	rig.answerAll(t)
	rig.fire(t, timerStartVoting)

	q, _ := rig.s.currentQuestion()
	target := rig.s.answersFor(q.Prompt)[0].PlayerID

	rig.s.vote("conn0", target)
	rig.s.vote("conn0", target)

	if rig.s.votes != 1 {
		t.Fatalf("votes = %d after double vote from one connection, want 1", rig.s.votes)
	}

	// Close the question (threshold for 6 players is 4) and open the next:
	// the flag resets.
	rig.castVotes(t, 3)
	if rig.s.phase != PhaseVotingResults {
		t.Fatalf("phase = %q, want voting_results", rig.s.phase)
	}
	rig.fire(t, timerNextQuestion)

	q2, _ := rig.s.currentQuestion()
	target2 := rig.s.answersFor(q2.Prompt)[0].PlayerID
	rig.s.vote("conn0", target2)
	if rig.s.votes != 1 {
		t.Fatalf("vote flag did not reset for the next question")
	}
}

func TestUnknownVoteTargetIgnored(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben", "cam", "dee")
	rig.s.startGame("conn0")
	rig.answerAll(t)
	rig.fire(t, timerStartVoting)

	rig.s.vote("conn0", "nobody")

	if rig.s.votes != 0 {
		t.Fatalf("votes = %d after unknown target, want 0", rig.s.votes)
	}
	if rig.s.voted["conn0"] {
		t.Fatal("vote flag set despite unknown target")
	}
}

func TestStaleTimerIsNoOp(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben", "cam", "dee")
	rig.s.startGame("conn0")
	rig.answerAll(t)
	rig.fire(t, timerStartVoting)

	// Remember the voting timeout, then close the question early.
	var stale armedTimer
	for _, timer := range rig.timers {
		if timer.kind == timerCloseQuestion {
			stale = timer
		}
	}
	rig.castVotes(t, 2)
	if rig.s.phase != PhaseVotingResults {
		t.Fatalf("phase = %q, want voting_results", rig.s.phase)
	}

	// The superseded timeout fires late: nothing may change.
	rig.s.onTimer(timerEvent{kind: stale.kind, gen: stale.gen})
	if rig.s.phase != PhaseVotingResults {
		t.Fatalf("stale timer advanced phase to %q", rig.s.phase)
	}
}

func TestForceVotingOverride(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben", "cam", "dee")
	rig.s.startGame("conn0")

	rig.s.forceVoting()
	if rig.s.phase != PhaseVoting {
		t.Fatalf("phase = %q after forced advance, want voting", rig.s.phase)
	}

	// Idempotent outside answering.
	rig.s.forceVoting()
	if rig.s.phase != PhaseVoting || rig.s.question != 0 {
		t.Fatal("repeated force_voting disturbed the voting phase")
	}
}

func TestResetFromAnyPhase(t *testing.T) {
	rig := newTestRig()
	rig.joinAll("ann", "ben", "cam", "dee")
	rig.s.startGame("conn0")
	rig.answerAll(t)
	rig.fire(t, timerStartVoting)

	rig.s.reset()

	if rig.s.phase != PhasePregame {
		t.Fatalf("phase = %q after reset, want pregame", rig.s.phase)
	}
	if len(rig.s.players) != 0 || len(rig.s.disconnected) != 0 {
		t.Fatal("reset did not clear the roster")
	}
	if rig.s.rounds != nil || len(rig.s.answers) != 0 {
		t.Fatal("reset did not discard the schedule and ledger")
	}

	// A stale timer from the abandoned game must not resurrect it.
	for _, timer := range rig.timers {
		rig.s.onTimer(timerEvent{kind: timer.kind, gen: timer.gen})
	}
	if rig.s.phase != PhasePregame {
		t.Fatalf("stale timer moved a reset session to %q", rig.s.phase)
	}
}

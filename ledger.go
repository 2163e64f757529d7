package main

// Answer is one player's submission for a prompt, scoped to the current
// round. At most one exists per (player, prompt) pair.
type Answer struct {
	PlayerID   string
	PlayerName string
	Prompt     string
	Text       string
	Votes      int
}

func (s *Session) answeredBy(name, prompt string) bool {
	for _, a := range s.answers {
		if a.PlayerName == name && a.Prompt == prompt {
			return true
		}
	}
	return false
}

func (s *Session) answersFor(prompt string) []AnswerInfo {
	answers := make([]AnswerInfo, 0, 2)
	for _, a := range s.answers {
		if a.Prompt != prompt {
			continue
		}
		answers = append(answers, AnswerInfo{
			PlayerID:   a.PlayerID,
			PlayerName: a.PlayerName,
			Prompt:     a.Prompt,
			Text:       a.Text,
			Votes:      a.Votes,
		})
	}
	return answers
}

// deliverNextPrompt sends a player their earliest assigned prompt in the
// current round that they have not answered yet. Assignment and answers
// are matched by display name, so delivery follows a reclaimed identity.
func (s *Session) deliverNextPrompt(p *Player) {
	if s.round < 0 || s.round >= len(s.rounds) {
		return
	}

	for _, q := range s.rounds[s.round] {
		if !q.names(p.Name) || s.answeredBy(p.Name, q.Prompt) {
			continue
		}

		s.out.sendTo(p.ID, PromptMessage{
			Type:   "prompt",
			Prompt: q.Prompt,
		})
		return
	}
}

// submitAnswer records a submission during the answering phase. Wrong
// phase, unknown connections, unassigned prompts and duplicates are all
// dropped silently; a stale client or transport retry is the expected
// cause, not an error.
func (s *Session) submitAnswer(id, prompt, text string) {
	if s.phase != PhaseAnswering {
		return
	}

	p := s.findPlayer(id)
	if p == nil {
		return
	}

	if s.round < 0 || s.round >= len(s.rounds) {
		return
	}

	assigned := false
	for _, q := range s.rounds[s.round] {
		if q.Prompt == prompt && q.names(p.Name) {
			assigned = true
			break
		}
	}
	if !assigned {
		return
	}

	if s.answeredBy(p.Name, prompt) {
		return
	}

	s.answers = append(s.answers, &Answer{
		PlayerID:   id,
		PlayerName: p.Name,
		Prompt:     prompt,
		Text:       text,
	})

	s.deliverNextPrompt(p)

	// Two answers per question completes the round; the grace delay folds
	// near-simultaneous last submissions into a single transition.
	if len(s.answers) == 2*len(s.rounds[s.round]) {
		s.arm(timerStartVoting, s.cfg.answerGrace)
	}

	s.pushState()
}

// vote records one vote for the answer owned by target on the current
// question. Each connection gets one vote per question; the flag resets
// when the next question's voting opens. Points go to the answer's
// author, never the voter.
func (s *Session) vote(id, target string) {
	if s.phase != PhaseVoting {
		return
	}

	if s.findPlayer(id) == nil || s.voted[id] {
		return
	}

	q, ok := s.currentQuestion()
	if !ok {
		s.endRound()
		return
	}

	var answer *Answer
	for _, a := range s.answers {
		if a.Prompt == q.Prompt && a.PlayerID == target {
			answer = a
			break
		}
	}
	if answer == nil {
		return
	}

	s.voted[id] = true
	s.votes++
	answer.Votes++

	if owner := s.findPlayer(target); owner != nil {
		owner.Score += pointsPerVote
	} else if dp, ok := s.disconnected[answer.PlayerName]; ok {
		dp.Player.Score += pointsPerVote
	}

	// Closure tolerates the two authors of the current question not
	// voting on their own prompt.
	if s.votes >= s.voteThreshold() {
		s.closeQuestion()
	}
}

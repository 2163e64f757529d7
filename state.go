package main

// projectedState derives the canonical phase-tagged view of the session.
// Display clients are expected to be able to render from this message
// alone, whichever broadcasts they may have missed.
func (s *Session) projectedState() StateMessage {
	msg := StateMessage{
		Type:    "state",
		Phase:   s.phase,
		Players: s.rosterInfo(),
	}

	if s.phase != PhasePregame && len(s.rounds) > 0 {
		msg.Round = s.round + 1
		if msg.Round > len(s.rounds) {
			msg.Round = len(s.rounds)
		}
	}

	switch s.phase {
	case PhaseVoting, PhaseVotingResults:
		if q, ok := s.currentQuestion(); ok {
			msg.Question = s.question + 1
			msg.Prompt = q.Prompt
			msg.Answers = s.answersFor(q.Prompt)
		}
	}

	return msg
}

func (s *Session) pushState() {
	s.out.broadcast(s.projectedState())
}

// debugInfo is the read-only diagnostic view served over HTTP. It is not
// part of the game protocol and makes no authority claims.
type debugInfo struct {
	Phase        Phase    `json:"phase"`
	Players      int      `json:"players"`
	Disconnected int      `json:"disconnected"`
	Round        int      `json:"round"`
	Question     int      `json:"question"`
	Answers      []string `json:"answers"`
}

func (s *Session) debugSnapshot() debugInfo {
	info := debugInfo{
		Phase:        s.phase,
		Players:      len(s.players),
		Disconnected: len(s.disconnected),
		Round:        s.round,
		Question:     s.question,
		Answers:      make([]string, 0, len(s.answers)),
	}

	for _, a := range s.answers {
		text := a.Text
		if len(text) > 32 {
			text = text[:32]
		}
		info.Answers = append(info.Answers, a.PlayerName+": "+text)
	}

	return info
}

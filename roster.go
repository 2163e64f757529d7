package main

import (
	"sort"
	"time"
)

// Player holds the data we store server-side for an active connection.
type Player struct {
	ID    string
	Name  string
	Score int
}

// DisconnectedPlayer is a player snapshot held so a later join with the
// same display name can reclaim score and in-flight answers. A name is
// never in the active roster and here at the same time.
type DisconnectedPlayer struct {
	Player         *Player
	DisconnectedAt time.Time
}

func (s *Session) findPlayer(id string) *Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// join adds a new player in pregame, or attempts a reclaim by display name
// once a game is in progress.
func (s *Session) join(id, name string) {
	if id == "" || name == "" {
		return
	}

	if s.phase == PhasePregame {
		for _, p := range s.players {
			if p.ID == id || p.Name == name {
				return
			}
		}

		s.players = append(s.players, &Player{ID: id, Name: name})

		s.out.sendTo(id, JoinedMessage{
			Type:     "joined",
			PlayerID: id,
			Players:  s.rosterInfo(),
		})
		s.broadcastRoster()
		s.pushState()
		return
	}

	s.reclaim(id, name)
}

// reclaim re-binds a disconnected player's identity, score and answers to
// a new connection bearing the same display name.
func (s *Session) reclaim(id, name string) {
	dp, ok := s.disconnected[name]
	if !ok {
		s.out.sendTo(id, SimpleMessage{
			Type:    "join_refused",
			Message: "A game is already in progress.",
		})
		return
	}

	// Drop any stale active entries still carrying this name.
	dst := s.players[:0]
	for _, p := range s.players {
		if p.Name == name {
			continue
		}
		dst = append(dst, p)
	}
	s.players = dst

	p := dp.Player
	p.ID = id
	s.players = append(s.players, p)
	delete(s.disconnected, name)

	// Re-key this round's answers so vote targeting keeps working.
	for _, a := range s.answers {
		if a.PlayerName == name {
			a.PlayerID = id
		}
	}

	s.dedupe()

	if s.phase == PhaseAnswering {
		s.deliverNextPrompt(p)
	}

	s.out.sendTo(id, JoinedMessage{
		Type:     "joined",
		PlayerID: id,
		Players:  s.rosterInfo(),
	})
	s.broadcastRoster()
	s.pushState()
}

// disconnect removes a player outright in pregame; mid-game the player is
// parked in the disconnected set so the name can be reclaimed.
func (s *Session) disconnect(id string) {
	p := s.findPlayer(id)
	if p == nil {
		return
	}

	dst := s.players[:0]
	for _, q := range s.players {
		if q.ID == id {
			continue
		}
		dst = append(dst, q)
	}
	s.players = dst

	if s.phase == PhasePregame {
		s.broadcastRoster()
		s.pushState()
		return
	}

	s.disconnected[p.Name] = &DisconnectedPlayer{
		Player:         p,
		DisconnectedAt: time.Now(),
	}

	s.broadcastRoster()
	s.pushState()
	s.continuationCheck()
}

// dedupe is a defensive pass removing roster entries that share a name or
// id with an earlier entry; first occurrence wins. Runs on a fixed
// interval and after every reconnection.
func (s *Session) dedupe() {
	seenID := make(map[string]bool, len(s.players))
	seenName := make(map[string]bool, len(s.players))

	dst := s.players[:0]
	changed := false
	for _, p := range s.players {
		if seenID[p.ID] || seenName[p.Name] {
			changed = true
			continue
		}
		seenID[p.ID] = true
		seenName[p.Name] = true
		dst = append(dst, p)
	}
	s.players = dst

	if changed {
		s.broadcastRoster()
	}
}

func (s *Session) rosterInfo() []PlayerInfo {
	players := make([]PlayerInfo, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, PlayerInfo{
			ID:    p.ID,
			Name:  p.Name,
			Score: p.Score,
		})
	}
	return players
}

// scoreboard returns the roster sorted by descending score, ties keeping
// join order.
func (s *Session) scoreboard() []PlayerInfo {
	players := s.rosterInfo()
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Score > players[j].Score
	})
	return players
}

func (s *Session) broadcastRoster() {
	s.out.broadcast(RosterMessage{
		Type:    "roster",
		Players: s.rosterInfo(),
	})
}

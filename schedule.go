package main

import (
	"crypto/rand"
)

// Question assigns one prompt to an unordered pair of players, tracked by
// display name so the pairing survives reconnection under a new
// connection id.
type Question struct {
	Prompt  string
	Players [2]string
}

func (q Question) names(name string) bool {
	return q.Players[0] == name || q.Players[1] == name
}

// shuffleSlice is a Fisher-Yates shuffle using crypto/rand.
func shuffleSlice[T any](s []T) {
	for i := len(s) - 1; i > 0; i-- {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		j := int(b[0]) % (i + 1)
		s[i], s[j] = s[j], s[i]
	}
}

// buildSchedule precomputes the full round/question plan for one game: for
// each round the roster is reshuffled and walked two at a time, forming
// floor(P/2) disjoint pairs, while a single draw cursor walks the shuffled
// prompt pool across all rounds, wrapping around only once the pool is
// exhausted. The result is immutable for the remainder of the game; later
// disconnections never alter it.
//
// With fewer than two players every round comes out empty; the start guard
// is expected to have enforced the real minimum already.
func buildSchedule(players []*Player, prompts []string, nrRounds int) [][]Question {
	names := make([]string, 0, len(players))
	for _, p := range players {
		names = append(names, p.Name)
	}
	shuffleSlice(names)

	shuffledPrompts := append([]string(nil), prompts...)
	shuffleSlice(shuffledPrompts)

	questionsPerRound := len(names) / 2

	rounds := make([][]Question, 0, nrRounds)
	cursor := 0
	for i := 0; i < nrRounds; i++ {
		shuffleSlice(names)

		questions := make([]Question, 0, questionsPerRound)
		for j := 0; j < questionsPerRound; j++ {
			questions = append(questions, Question{
				Prompt:  shuffledPrompts[cursor%len(shuffledPrompts)],
				Players: [2]string{names[j*2], names[j*2+1]},
			})
			cursor++
		}
		rounds = append(rounds, questions)
	}

	return rounds
}

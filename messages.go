package main

// Messages coming from clients
type ClientMessage struct {
	Type    string   `json:"type"`              // "join", "start_game", "submit_answer", "vote", host commands
	Name    string   `json:"name,omitempty"`    // join
	Prompt  string   `json:"prompt,omitempty"`  // submit_answer
	Text    string   `json:"text,omitempty"`    // submit_answer
	Target  string   `json:"target,omitempty"`  // vote: id of the player whose answer is voted for
	Prompts []string `json:"prompts,omitempty"` // set_prompts
}

// PlayerInfo is the wire form of a roster entry.
type PlayerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// AnswerInfo is the wire form of a submitted answer.
type AnswerInfo struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Prompt     string `json:"prompt"`
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
}

// Sent to a single client after a successful join or reclaim.
type JoinedMessage struct {
	Type     string       `json:"type"` // "joined"
	PlayerID string       `json:"player_id"`
	Players  []PlayerInfo `json:"players"`
}

// RosterMessage broadcasts the active player list.
type RosterMessage struct {
	Type    string       `json:"type"` // "roster"
	Players []PlayerInfo `json:"players"`
}

// RoundStartedMessage announces a new answering round (1-based).
type RoundStartedMessage struct {
	Type  string `json:"type"` // "round_started"
	Round int    `json:"round"`
}

// PromptMessage is sent to a single player with their assigned prompt.
type PromptMessage struct {
	Type   string `json:"type"` // "prompt"
	Prompt string `json:"prompt"`
}

// VotingMessage opens voting on one question.
type VotingMessage struct {
	Type    string       `json:"type"` // "voting"
	Prompt  string       `json:"prompt"`
	Answers []AnswerInfo `json:"answers"`
}

// VotingResultsMessage shows the vote tally for the question just closed.
type VotingResultsMessage struct {
	Type    string       `json:"type"` // "voting_results"
	Prompt  string       `json:"prompt"`
	Answers []AnswerInfo `json:"answers"`
}

// ScoreboardMessage carries the standings, sorted by descending score.
// Used for both "round_ended" and "game_ended".
type ScoreboardMessage struct {
	Type    string       `json:"type"`
	Players []PlayerInfo `json:"players"`
}

// StateMessage is the canonical phase-tagged projection of a session,
// broadcast after every completed step so display clients can render
// from it alone.
type StateMessage struct {
	Type     string       `json:"type"` // "state"
	Phase    Phase        `json:"phase"`
	Round    int          `json:"round"`    // 1-based, 0 before the game starts
	Question int          `json:"question"` // 1-based, 0 outside voting
	Players  []PlayerInfo `json:"players"`
	Prompt   string       `json:"prompt,omitempty"`  // current question, voting phases only
	Answers  []AnswerInfo `json:"answers,omitempty"` // current question, voting phases only
}

// SimpleMessage is for generic notifications ("paused", "join_refused",
// "start_refused", etc.)
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

package games

// Each player joins a shared game link with a display name
// Once an even lobby of four or more is ready, anyone can press start
// Every round, players are paired off two to a prompt; both write an answer
// The lobby then votes on each pairing's answers in turn
// Every vote is worth 100 points to the answer's author, never the voter
// After the configured number of rounds, highest score wins

// Display formats:
// Players answer on their own phones; a shared screen can follow the
// broadcast state messages to show prompts, answers and the scoreboard

// Implementation details:
// - One websocket hub per game ID, driven by a single event loop
// - Players identified by cookie, so a refresh or a dropped connection
//   can reclaim the same name, score and pending prompts mid-game
// - The full round/question schedule is drawn up front at game start and
//   never recomputed, even if players disconnect

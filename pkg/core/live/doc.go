// Package live implements the real-time voice conversation engine that
// conducts an interview once the candidate is in the room.
//
// The engine is "a chat loop with ears and a mouth": remote audio is
// streamed to speech-to-text, each finished utterance becomes a user turn,
// the language model answers under the compiled interview instructions, and
// the answer is synthesized and published back to the room.
//
// # Data Flow
//
//	Room audio → STT stream → user turn → LLM → assistant turn → TTS → Room
//	                 │                                  │
//	                 └──── speech events ───────────────┘
//
// # History
//
// Every turn is appended to an ordered history that callers read as a
// snapshot with History. After Close no further entries are recorded, so a
// snapshot taken after Close is final.
package live

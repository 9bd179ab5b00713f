// Package voice holds the audio plumbing shared by the speech providers and
// the conversation engine: PCM format arithmetic, energy-based utterance
// segmentation and sentence splitting for incremental synthesis.
//
// Provider implementations live in the stt and tts subpackages.
package voice

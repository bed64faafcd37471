package pipeline

import "strings"

// noisePatterns are transcripts whisper commonly hallucinates on room noise.
var noisePatterns = map[string]bool{
	"crunching": true, "static": true, "silence": true, "noise": true,
	"inaudible": true, "unintelligible": true, "background noise": true,
	"music": true, "typing": true, "breathing": true, "sigh": true,
	"cough": true, "laughter": true, "applause": true,
	"you": true, "um": true, "uh": true, "hmm": true, "mhm": true,
	"blank_audio": true, "thank you.": true, "thanks for watching!": true,
}

// IsNoiseTranscript reports whether text looks like a noise annotation
// ("[BLANK_AUDIO]", "*static*", "(music)") rather than speech.
func IsNoiseTranscript(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	for _, pair := range [][2]string{{"*", "*"}, {"[", "]"}, {"(", ")"}} {
		if strings.HasPrefix(text, pair[0]) && strings.HasSuffix(text, pair[1]) {
			return true
		}
	}
	return noisePatterns[strings.ToLower(text)]
}

package transcript

import (
	"strings"
	"unicode/utf8"
)

// PlaceholderSpeaker replaces a missing speaker label.
const PlaceholderSpeaker = "Speaker"

// EstimateTokens approximates token count as one token per four characters.
// It is for sizing decisions only, never for billing.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// FormatLine renders one utterance as "{speaker}: {text}".
func FormatLine(u Utterance) string {
	speaker := strings.TrimSpace(u.SpeakerName)
	if speaker == "" {
		speaker = PlaceholderSpeaker
	}
	return speaker + ": " + u.Text
}

// FormatUtterances renders utterances one per line in input order.
func FormatUtterances(utterances []Utterance) string {
	var sb strings.Builder
	for i, u := range utterances {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(FormatLine(u))
	}
	return sb.String()
}

// EstimateTotal estimates the token size of the whole formatted transcript.
func EstimateTotal(utterances []Utterance) int {
	return EstimateTokens(FormatUtterances(utterances))
}

package transcript

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Duration units accepted on the inbound job.
const (
	UnitSeconds = "seconds"
	UnitMinutes = "minutes"
	UnitHours   = "hours"
)

// Input is one inbound meeting transcript. It is treated as read-only once decoded.
type Input struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Date           json.RawMessage `json:"date,omitempty"`
	Duration       float64         `json:"duration"`
	DurationUnit   string          `json:"duration_unit,omitempty"`
	Summary        Summary         `json:"summary"`
	Sentences      []Utterance     `json:"sentences"`
	TranscriptURL  string          `json:"transcript_url,omitempty"`
	OrganizerEmail string          `json:"organizer_email,omitempty"`
	Participants   []string        `json:"participants,omitempty"`
}

type Summary struct {
	Overview    string     `json:"overview,omitempty"`
	ActionItems TextOrList `json:"action_items"`
	KeyPoints   TextOrList `json:"shorthand_bullet"`
	Keywords    TextOrList `json:"keywords"`
}

type Utterance struct {
	SpeakerName string `json:"speaker_name"`
	Text        string `json:"text"`
}

// DateString wraps a date string as the raw JSON the Date field holds.
func DateString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// DateEpochMillis wraps an epoch timestamp in milliseconds as raw JSON.
func DateEpochMillis(ms int64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf("%d", ms))
}

// Validate reports inbound shape problems the caller must reject.
func (in Input) Validate() error {
	if strings.TrimSpace(in.ID) == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

// SpokenSentences returns the sentences with non-blank text and how many were
// dropped. The receiver's slice is never modified.
func (in Input) SpokenSentences() ([]Utterance, int) {
	blank := 0
	for _, s := range in.Sentences {
		if strings.TrimSpace(s.Text) == "" {
			blank++
		}
	}
	if blank == 0 {
		return in.Sentences, 0
	}
	out := make([]Utterance, 0, len(in.Sentences)-blank)
	for _, s := range in.Sentences {
		if strings.TrimSpace(s.Text) != "" {
			out = append(out, s)
		}
	}
	return out, blank
}

// DisplayTitle returns the title or a placeholder.
func (in Input) DisplayTitle() string {
	if t := strings.TrimSpace(in.Title); t != "" {
		return t
	}
	return "Untitled Meeting"
}

// MeetingDate normalizes Date to a calendar day. Numbers are epoch
// milliseconds; strings are RFC3339 or YYYY-MM-DD. Anything else yields now.
func (in Input) MeetingDate(now time.Time) time.Time {
	today := truncateDay(now)
	if len(in.Date) == 0 {
		return today
	}

	v := gjson.ParseBytes(in.Date)
	switch v.Type {
	case gjson.Number:
		return truncateDay(time.UnixMilli(v.Int()).UTC())
	case gjson.String:
		s := strings.TrimSpace(v.String())
		if s == "" {
			return today
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return truncateDay(t)
			}
		}
		log.Printf("[transcript] unparseable date %q for meeting %s, using today", s, in.ID)
		return today
	case gjson.Null:
		return today
	default:
		log.Printf("[transcript] unsupported date value %s for meeting %s, using today", v.Raw, in.ID)
		return today
	}
}

// MeetingDuration converts Duration using DurationUnit, defaulting to seconds.
func (in Input) MeetingDuration() time.Duration {
	return in.MeetingDurationIn(UnitSeconds)
}

// MeetingDurationIn converts Duration using DurationUnit, or defaultUnit when
// the input does not name one.
func (in Input) MeetingDurationIn(defaultUnit string) time.Duration {
	if in.Duration <= 0 {
		return 0
	}
	unit := normalizeUnit(in.DurationUnit)
	if unit == "" {
		unit = normalizeUnit(defaultUnit)
	}

	var scale time.Duration
	switch unit {
	case UnitSeconds, "":
		scale = time.Second
	case UnitMinutes:
		scale = time.Minute
	case UnitHours:
		scale = time.Hour
	default:
		log.Printf("[transcript] unknown duration unit %q for meeting %s, assuming seconds", unit, in.ID)
		scale = time.Second
	}
	return time.Duration(in.Duration * float64(scale))
}

func normalizeUnit(u string) string {
	switch strings.ToLower(strings.TrimSpace(u)) {
	case "":
		return ""
	case "s", "sec", "secs", "second", "seconds":
		return UnitSeconds
	case "m", "min", "mins", "minute", "minutes":
		return UnitMinutes
	case "h", "hr", "hrs", "hour", "hours":
		return UnitHours
	default:
		return strings.ToLower(strings.TrimSpace(u))
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// TextOrList holds a summary field that arrives either as one string or as a
// list of strings.
type TextOrList struct {
	text  string
	items []string
	list  bool
}

func Text(s string) TextOrList {
	return TextOrList{text: s}
}

func Items(items ...string) TextOrList {
	return TextOrList{items: append([]string(nil), items...), list: true}
}

func (t *TextOrList) UnmarshalJSON(data []byte) error {
	v := gjson.ParseBytes(data)
	switch {
	case v.Type == gjson.Null:
		*t = TextOrList{}
	case v.Type == gjson.String:
		*t = Text(v.String())
	case v.IsArray():
		var items []string
		for _, el := range v.Array() {
			if el.Type == gjson.Null {
				continue
			}
			items = append(items, el.String())
		}
		*t = TextOrList{items: items, list: true}
	default:
		return fmt.Errorf("expected string or list of strings, got %s", v.Raw)
	}
	return nil
}

func (t TextOrList) MarshalJSON() ([]byte, error) {
	if t.list {
		if t.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(t.items)
	}
	if t.text == "" {
		return []byte("null"), nil
	}
	return json.Marshal(t.text)
}

// IsList reports whether the value arrived as a list.
func (t TextOrList) IsList() bool { return t.list }

// Lines returns list items as-is, or the non-empty trimmed lines of the text.
func (t TextOrList) Lines() []string {
	if t.list {
		return append([]string(nil), t.items...)
	}
	var out []string
	for _, line := range strings.Split(t.text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (t TextOrList) Count() int {
	return len(t.Lines())
}

// Bullets renders the lines as a "- " list, or empty when there are none.
func (t TextOrList) Bullets(empty string) string {
	lines := t.Lines()
	if len(lines) == 0 {
		return empty
	}
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "- "), "• "))
	}
	return sb.String()
}

package transcript

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"abcd", 1},
		{strings.Repeat("x", 41), 10},
		{"ééééé", 1},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.in); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatUtterances(t *testing.T) {
	got := FormatUtterances([]Utterance{
		{SpeakerName: "Alice", Text: "Hello"},
		{SpeakerName: "  ", Text: "Who is this?"},
		{Text: "Bob here"},
	})
	want := "Alice: Hello\nSpeaker: Who is this?\nSpeaker: Bob here"
	assert.Equal(t, want, got)
	assert.Equal(t, EstimateTokens(want), EstimateTotal([]Utterance{
		{SpeakerName: "Alice", Text: "Hello"},
		{SpeakerName: "  ", Text: "Who is this?"},
		{Text: "Bob here"},
	}))
}

func TestSplit_Edges(t *testing.T) {
	assert.Empty(t, Split(nil, 10))

	big := Utterance{SpeakerName: "A", Text: strings.Repeat("word ", 100)}
	small := Utterance{SpeakerName: "B", Text: "ok"}
	chunks := Split([]Utterance{small, big, small}, 20)
	require.Len(t, chunks, 3)
	assert.Equal(t, []Utterance{big}, chunks[1].Utterances, "oversized utterance sits alone")

	// Non-positive ceiling falls back to the default.
	chunks = Split([]Utterance{small, big, small}, 0)
	require.Len(t, chunks, 1)
	assert.Equal(t, "B: ok\n"+FormatLine(big)+"\nB: ok", chunks[0].Text())
}

func TestInput_Decode(t *testing.T) {
	raw := `{
		"id": "m1",
		"title": "Weekly L10",
		"date": "2025-03-04T15:00:00Z",
		"duration": 1800,
		"summary": {
			"overview": "Quarter review",
			"action_items": "Alice: send report\n\nBob: book room\n",
			"shorthand_bullet": ["budget", "hiring"],
			"keywords": null
		},
		"sentences": [{"speaker_name": "Alice", "text": "Hi"}]
	}`
	var in Input
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	require.NoError(t, in.Validate())

	assert.False(t, in.Summary.ActionItems.IsList())
	assert.Equal(t, []string{"Alice: send report", "Bob: book room"}, in.Summary.ActionItems.Lines())
	assert.Equal(t, 2, in.Summary.ActionItems.Count())
	assert.True(t, in.Summary.KeyPoints.IsList())
	assert.Equal(t, "- budget\n- hiring", in.Summary.KeyPoints.Bullets("none"))
	assert.Equal(t, "none", in.Summary.Keywords.Bullets("none"))
	assert.Equal(t, 30*time.Minute, in.MeetingDuration())

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC).Equal(in.MeetingDate(now)))
}

func TestInput_DecodeRejectsObjectSummaryField(t *testing.T) {
	var in Input
	err := json.Unmarshal([]byte(`{"id":"x","summary":{"action_items":{"a":1}}}`), &in)
	assert.Error(t, err)
}

func TestInput_MeetingDate(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		date json.RawMessage
		want time.Time
	}{
		{"missing", nil, today},
		{"plain date", DateString("2025-12-01"), time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
		{"epoch millis", DateEpochMillis(time.Date(2025, 6, 7, 8, 0, 0, 0, time.UTC).UnixMilli()), time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)},
		{"garbage", DateString("next tuesday"), today},
		{"empty string", DateString(""), today},
		{"null", json.RawMessage("null"), today},
		{"bool", json.RawMessage("true"), today},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{ID: "m", Date: tt.date}
			assert.True(t, tt.want.Equal(in.MeetingDate(now)), "got %v want %v", in.MeetingDate(now), tt.want)
		})
	}
}

func TestInput_MeetingDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		unit     string
		want     time.Duration
	}{
		{"default seconds", 300, "", 5 * time.Minute},
		{"minutes", 1.5, "minutes", 90 * time.Second},
		{"hours", 0.25, "h", 15 * time.Minute},
		{"negative", -10, "", 0},
		{"unknown unit", 60, "fortnights", time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Input{ID: "m", Duration: tt.duration, DurationUnit: tt.unit}
			assert.Equal(t, tt.want, in.MeetingDuration())
		})
	}

	in := Input{ID: "m", Duration: 2}
	assert.Equal(t, 2*time.Hour, in.MeetingDurationIn(UnitHours))
}

func TestInput_Validate(t *testing.T) {
	assert.Error(t, Input{}.Validate())
	assert.NoError(t, Input{ID: "m", Sentences: []Utterance{{SpeakerName: "A"}}}.Validate(), "blank sentences are dropped, not rejected")
	assert.NoError(t, Input{ID: "m"}.Validate())
	assert.Equal(t, "Untitled Meeting", Input{ID: "m"}.DisplayTitle())
}

func TestTextOrList_MarshalKeepsShape(t *testing.T) {
	b, err := json.Marshal(Items("a", "b"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(b))

	b, err = json.Marshal(Text("one\ntwo"))
	require.NoError(t, err)
	assert.JSONEq(t, `"one\ntwo"`, string(b))
}

func TestInput_SpokenSentences(t *testing.T) {
	in := Input{ID: "m", Sentences: []Utterance{
		{SpeakerName: "Ann", Text: "Morning."},
		{SpeakerName: "Bo", Text: ""},
		{SpeakerName: "Ann", Text: "  "},
		{SpeakerName: "Bo", Text: "Hi."},
	}}

	got, dropped := in.SpokenSentences()
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []Utterance{{SpeakerName: "Ann", Text: "Morning."}, {SpeakerName: "Bo", Text: "Hi."}}, got)
	assert.Len(t, in.Sentences, 4)
	assert.Equal(t, "", in.Sentences[1].Text)

	clean := Input{ID: "m", Sentences: []Utterance{{Text: "a"}}}
	got, dropped = clean.SpokenSentences()
	assert.Zero(t, dropped)
	assert.Equal(t, clean.Sentences, got)
}

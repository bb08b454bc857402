package lessons

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestDifficulty(t *testing.T) {
	if !DifficultyElementary.Valid() || !DifficultyUniversity.Valid() {
		t.Fatalf("known difficulties should be valid")
	}
	if Difficulty(3).Valid() || Difficulty(-1).Valid() {
		t.Fatalf("out of range difficulty should be invalid")
	}
	if DifficultyHighSchool.String() != "High School" {
		t.Fatalf("String: %q", DifficultyHighSchool.String())
	}
}

func TestParseMediaKind(t *testing.T) {
	if k, ok := ParseMediaKind(" Image "); !ok || k != MediaKindImage {
		t.Fatalf("got %q %v", k, ok)
	}
	if _, ok := ParseMediaKind("video"); ok {
		t.Fatalf("video should not parse")
	}
}

func TestLessonCompleteAndJSON(t *testing.T) {
	l := &Lesson{ID: uuid.New(), Prompt: "fotosíntesis"}
	if l.Complete() {
		t.Fatalf("lesson without outline is not complete")
	}

	raw, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, `"outline":[]`) || !strings.Contains(s, `"steps":[]`) {
		t.Fatalf("empty lesson should serialize empty arrays: %s", s)
	}

	l.Outline = OutlineJSON([]OutlineStep{
		{Title: "A", MediaKind: MediaKindText, Instruction: "p1", NarrationScript: "s1"},
		{Title: "B", MediaKind: MediaKindImage, Instruction: "p2", NarrationScript: "s2"},
	})
	l.Steps = []LessonStep{{Title: "A", MediaKind: MediaKindText, Explanation: "x"}}
	if l.Complete() {
		t.Fatalf("1 of 2 steps is not complete")
	}
	l.Steps = append(l.Steps, LessonStep{Title: "B", OutlineIndex: 1, MediaKind: MediaKindImage, Explanation: "p2"})
	if !l.Complete() {
		t.Fatalf("2 of 2 steps should be complete")
	}

	raw, err = json.Marshal(l.Steps[0])
	if err != nil {
		t.Fatalf("marshal step: %v", err)
	}
	if !strings.Contains(string(raw), `"references":[]`) || !strings.Contains(string(raw), `"image":null`) {
		t.Fatalf("step json: %s", raw)
	}
}

package lessons

import "strings"

type Difficulty int

const (
	DifficultyElementary Difficulty = iota
	DifficultyHighSchool
	DifficultyUniversity
)

func (d Difficulty) Valid() bool {
	return d >= DifficultyElementary && d <= DifficultyUniversity
}

// String is the level name interpolated into generation prompts.
func (d Difficulty) String() string {
	switch d {
	case DifficultyElementary:
		return "Elementary"
	case DifficultyHighSchool:
		return "High School"
	case DifficultyUniversity:
		return "University"
	default:
		return "High School"
	}
}

type MediaKind string

const (
	MediaKindText  MediaKind = "text"
	MediaKindImage MediaKind = "image"
)

func (k MediaKind) Valid() bool {
	return k == MediaKindText || k == MediaKindImage
}

// ParseMediaKind is lenient on case and surrounding space.
func ParseMediaKind(s string) (MediaKind, bool) {
	k := MediaKind(strings.ToLower(strings.TrimSpace(s)))
	return k, k.Valid()
}

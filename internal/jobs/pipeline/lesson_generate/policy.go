package lesson_generate

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Origin names where in a run a failure happened.
type Origin string

const (
	OriginOutline             Origin = "outline"
	OriginEncyclopedia        Origin = "encyclopedia"
	OriginMedia               Origin = "media"
	OriginAssetStore          Origin = "asset_store"
	OriginReferences          Origin = "references"
	OriginNarration           Origin = "narration"
	OriginNarrationCredential Origin = "narration_credential"
)

// Action is what the run does about a failure.
type Action string

const (
	// ActionAbandon ends the run; whatever was written stays.
	ActionAbandon Action = "abandon"
	// ActionSkip drops the current step and moves to the next one.
	ActionSkip Action = "skip"
	// ActionDegrade carries on with an empty or fallback result.
	ActionDegrade Action = "degrade"
)

// Policy maps each failure origin to the action taken.
type Policy map[Origin]Action

var allowedActions = map[Origin][]Action{
	OriginOutline:             {ActionAbandon},
	OriginEncyclopedia:        {ActionAbandon, ActionDegrade},
	OriginMedia:               {ActionAbandon, ActionSkip, ActionDegrade},
	OriginAssetStore:          {ActionAbandon, ActionSkip, ActionDegrade},
	OriginReferences:          {ActionAbandon, ActionSkip, ActionDegrade},
	OriginNarration:           {ActionAbandon, ActionSkip, ActionDegrade},
	OriginNarrationCredential: {ActionAbandon, ActionSkip, ActionDegrade},
}

/*
DefaultPolicy is the historical behavior:
  - no outline or a failed outline write abandons the run
  - media and asset store failures skip the step
  - encyclopedia, references and narration failures degrade
  - a missing TTS credential abandons the run
*/
func DefaultPolicy() Policy {
	return Policy{
		OriginOutline:             ActionAbandon,
		OriginEncyclopedia:        ActionDegrade,
		OriginMedia:               ActionSkip,
		OriginAssetStore:          ActionSkip,
		OriginReferences:          ActionDegrade,
		OriginNarration:           ActionDegrade,
		OriginNarrationCredential: ActionAbandon,
	}
}

// Resolve returns the action for origin, falling back to the default table.
func (p Policy) Resolve(origin Origin) Action {
	if a, ok := p[origin]; ok {
		return a
	}
	if a, ok := DefaultPolicy()[origin]; ok {
		return a
	}
	return ActionAbandon
}

func (p Policy) Validate() error {
	for origin, action := range p {
		allowed, ok := allowedActions[origin]
		if !ok {
			return fmt.Errorf("unknown failure origin %q", origin)
		}
		if !containsAction(allowed, action) {
			return fmt.Errorf("action %q not allowed for origin %q (allowed: %s)", action, origin, joinActions(allowed))
		}
	}
	return nil
}

func containsAction(list []Action, a Action) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func joinActions(list []Action) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		parts = append(parts, string(a))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

/*
ParsePolicy reads YAML overrides on top of DefaultPolicy:

	media: degrade
	narration_credential: skip

Keys and values are case-insensitive. Origins not listed keep their default.
*/
func ParsePolicy(data []byte) (Policy, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse failure policy: %w", err)
	}
	p := DefaultPolicy()
	for k, v := range raw {
		origin := Origin(strings.ToLower(strings.TrimSpace(k)))
		p[origin] = Action(strings.ToLower(strings.TrimSpace(v)))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPolicy reads overrides from path; an empty path is the default policy.
func LoadPolicy(path string) (Policy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failure policy: %w", err)
	}
	return ParsePolicy(data)
}

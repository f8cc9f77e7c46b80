package proposer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/houra-app/houra/internal/model"
)

// Field limits for generated actions.
const (
	maxTitleLen  = 200
	maxDetailLen = 2000
)

var errNoActions = errors.New("proposer: backend returned no actions")

// candidate is one generated action in the backend wire format. Fields not
// listed here are rejected.
type candidate struct {
	Title        string           `json:"title"`
	Detail       string           `json:"detail"`
	ActionKind   model.ActionKind `json:"actionKind"`
	TargetEntity model.EntityType `json:"targetEntity"`
	TargetID     string           `json:"targetId"`
	DiffJSON     json.RawMessage  `json:"diffJson"`
	// SafetyClass is accepted so that well-meaning backends are not
	// rejected, and then ignored.
	SafetyClass string `json:"safetyClass,omitempty"`

	targetID uuid.UUID
	diff     []byte
}

// envelope is the object form of the backend output.
type envelope struct {
	Actions []json.RawMessage `json:"actions"`
}

// decodeCandidates parses backend output. It accepts a bare array or
// {"actions": [...]}, keeps at most MaxGenerativeActions items, and fails if
// any kept item does not match the schema.
func decodeCandidates(raw string) ([]candidate, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return nil, errNoActions
	}

	var items []json.RawMessage
	switch data[0] {
	case '[':
		if err := strictUnmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("proposer: decode array: %w", err)
		}
	case '{':
		var env envelope
		if err := strictUnmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("proposer: decode envelope: %w", err)
		}
		items = env.Actions
	default:
		return nil, fmt.Errorf("proposer: output is neither a JSON array nor an object")
	}

	if len(items) == 0 {
		return nil, errNoActions
	}
	if len(items) > MaxGenerativeActions {
		items = items[:MaxGenerativeActions]
	}

	out := make([]candidate, 0, len(items))
	for i, item := range items {
		c, err := decodeCandidate(item)
		if err != nil {
			return nil, fmt.Errorf("proposer: action %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeCandidate(raw json.RawMessage) (candidate, error) {
	var c candidate
	if err := strictUnmarshal(raw, &c); err != nil {
		return candidate{}, err
	}

	c.Title = strings.TrimSpace(c.Title)
	if c.Title == "" {
		return candidate{}, errors.New("title is required")
	}
	if utf8.RuneCountInString(c.Title) > maxTitleLen {
		return candidate{}, fmt.Errorf("title exceeds %d characters", maxTitleLen)
	}
	if utf8.RuneCountInString(c.Detail) > maxDetailLen {
		return candidate{}, fmt.Errorf("detail exceeds %d characters", maxDetailLen)
	}
	if !c.ActionKind.Valid() {
		return candidate{}, fmt.Errorf("unknown actionKind %q", c.ActionKind)
	}
	if !c.TargetEntity.Valid() {
		return candidate{}, fmt.Errorf("unknown targetEntity %q", c.TargetEntity)
	}
	id, err := uuid.Parse(c.TargetID)
	if err != nil {
		return candidate{}, fmt.Errorf("targetId: %w", err)
	}
	c.targetID = id

	diff, err := normalizeDiff(c.DiffJSON)
	if err != nil {
		return candidate{}, fmt.Errorf("diffJson: %w", err)
	}
	c.diff = diff
	return c, nil
}

// normalizeDiff accepts an object, a string holding a JSON object, or a
// plain descriptive string, and returns a JSON document.
func normalizeDiff(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []byte(`{}`), nil
	}
	switch raw[0] {
	case '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if strings.HasPrefix(s, "{") && json.Valid([]byte(s)) {
			var buf bytes.Buffer
			if err := json.Compact(&buf, []byte(s)); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		}
		return json.Marshal(map[string]string{"summary": s})
	default:
		return nil, errors.New("must be an object or a string")
	}
}

// strictUnmarshal decodes exactly one JSON value, rejecting unknown struct
// fields and trailing data.
func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

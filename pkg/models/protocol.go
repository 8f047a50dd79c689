package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ChoiceKind discriminates the inbound choice payload.
type ChoiceKind string

// Choice kind constants.
const (
	ChoiceKindStart         ChoiceKind = "start"
	ChoiceKindRevealSummary ChoiceKind = "reveal_summary"
	ChoiceKindNarrative     ChoiceKind = "narrative"
	ChoiceKindLessonAnswer  ChoiceKind = "lesson_answer"
)

// ClientChoice is the parsed form of an inbound WebSocket frame.
type ClientChoice struct {
	Kind        ChoiceKind
	ChosenPath  string
	ChoiceText  string
	AnswerIndex int

	// StateSnapshot is the legacy client-held state blob. The server treats
	// it as advisory only and always trusts its own persisted copy.
	StateSnapshot json.RawMessage
}

// clientFrame is the raw wire shape of an inbound frame.
type clientFrame struct {
	State  json.RawMessage `json:"state,omitempty"`
	Choice json.RawMessage `json:"choice"`
}

// narrativeChoice is the object form of a narrative choice payload.
type narrativeChoice struct {
	ChosenPath string `json:"chosen_path"`
	ChoiceText string `json:"choice_text"`
}

// ParseClientFrame decodes an inbound JSON frame into a ClientChoice.
// The choice field is polymorphic: the sentinels "start" and
// "reveal_summary", an integer lesson answer, or a narrative choice object.
func ParseClientFrame(data []byte) (*ClientChoice, error) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if len(frame.Choice) == 0 {
		return nil, fmt.Errorf("frame missing choice field")
	}

	out := &ClientChoice{StateSnapshot: frame.State}
	raw := strings.TrimSpace(string(frame.Choice))

	switch {
	case strings.HasPrefix(raw, `"`):
		var sentinel string
		if err := json.Unmarshal(frame.Choice, &sentinel); err != nil {
			return nil, fmt.Errorf("malformed choice string: %w", err)
		}
		switch sentinel {
		case string(ChoiceKindStart):
			out.Kind = ChoiceKindStart
		case string(ChoiceKindRevealSummary):
			out.Kind = ChoiceKindRevealSummary
		default:
			return nil, fmt.Errorf("unknown choice sentinel %q", sentinel)
		}
	case strings.HasPrefix(raw, "{"):
		var nc narrativeChoice
		if err := json.Unmarshal(frame.Choice, &nc); err != nil {
			return nil, fmt.Errorf("malformed narrative choice: %w", err)
		}
		if nc.ChosenPath == "" {
			return nil, fmt.Errorf("narrative choice missing chosen_path")
		}
		out.Kind = ChoiceKindNarrative
		out.ChosenPath = nc.ChosenPath
		out.ChoiceText = nc.ChoiceText
	default:
		var idx int
		if err := json.Unmarshal(frame.Choice, &idx); err != nil {
			return nil, fmt.Errorf("unrecognized choice payload: %w", err)
		}
		if idx < 0 {
			return nil, fmt.Errorf("answer index %d out of range", idx)
		}
		out.Kind = ChoiceKindLessonAnswer
		out.AnswerIndex = idx
	}

	return out, nil
}

// Outbound frame type tags.
const (
	FrameTypeChapterUpdate  = "chapter_update"
	FrameTypeReplaceContent = "replace_content"
	FrameTypeChoices        = "choices"
	FrameTypeImage          = "image"
	FrameTypeSummaryReady   = "summary_ready"
	FrameTypeError          = "error"
)

// ChapterUpdateFrame announces the chapter about to stream. It precedes
// the first content chunk, and is re-emitted after the CONCLUSION stream
// for correct final display.
type ChapterUpdateFrame struct {
	Type           string `json:"type"`
	CurrentChapter int    `json:"current_chapter"`
	TotalChapters  int    `json:"total_chapters"`
}

// NewChapterUpdateFrame builds a chapter_update frame.
func NewChapterUpdateFrame(current, total int) ChapterUpdateFrame {
	return ChapterUpdateFrame{Type: FrameTypeChapterUpdate, CurrentChapter: current, TotalChapters: total}
}

// ReplaceContentFrame carries the authoritative cleaned chapter text that
// replaces whatever was live-streamed (choice markers stripped).
type ReplaceContentFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewReplaceContentFrame builds a replace_content frame.
func NewReplaceContentFrame(content string) ReplaceContentFrame {
	return ReplaceContentFrame{Type: FrameTypeReplaceContent, Content: content}
}

// ChoicesFrame presents the selectable options for the streamed chapter.
type ChoicesFrame struct {
	Type    string   `json:"type"`
	Choices []Choice `json:"choices"`
}

// NewChoicesFrame builds a choices frame.
func NewChoicesFrame(choices []Choice) ChoicesFrame {
	return ChoicesFrame{Type: FrameTypeChoices, Choices: choices}
}

// ImageFrame delivers generated image bytes for a chapter. Chapter tags the
// frame so clients tolerate out-of-order delivery.
type ImageFrame struct {
	Type        string `json:"type"`
	Chapter     int    `json:"chapter"`
	BytesBase64 string `json:"bytes_base64"`
}

// NewImageFrame builds an image frame.
func NewImageFrame(chapter int, b64 string) ImageFrame {
	return ImageFrame{Type: FrameTypeImage, Chapter: chapter, BytesBase64: b64}
}

// SummaryReadyFrame signals that the adventure is complete and the summary
// page may be fetched by state id.
type SummaryReadyFrame struct {
	Type    string `json:"type"`
	StateID string `json:"state_id"`
}

// NewSummaryReadyFrame builds a summary_ready frame.
func NewSummaryReadyFrame(stateID string) SummaryReadyFrame {
	return SummaryReadyFrame{Type: FrameTypeSummaryReady, StateID: stateID}
}

// ErrorFrame reports a recoverable or fatal error to the client.
type ErrorFrame struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewErrorFrame builds an error frame.
func NewErrorFrame(kind, message string) ErrorFrame {
	return ErrorFrame{Type: FrameTypeError, Kind: kind, Message: message}
}

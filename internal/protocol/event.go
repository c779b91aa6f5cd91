package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Wire event names carried in the "event" field of every frame.
const (
	EventPageFlip  = "page-flip"
	EventResetPage = "reset-page"
)

var ErrInvalidFrame = errors.New("invalid frame")

type FrameError struct {
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid frame: %s", e.Reason)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

func (e *FrameError) Is(target error) bool {
	return target == ErrInvalidFrame
}

type Kind int

const (
	KindPageChanged Kind = iota + 1
	KindResetToStart
)

func (k Kind) String() string {
	switch k {
	case KindPageChanged:
		return EventPageFlip
	case KindResetToStart:
		return EventResetPage
	default:
		return "unknown"
	}
}

// SyncEvent is either PageChanged(Page) or ResetToStart. It carries no sender
// identity.
type SyncEvent struct {
	Kind Kind
	Page int
}

func PageChanged(page int) SyncEvent {
	return SyncEvent{Kind: KindPageChanged, Page: page}
}

func ResetToStart() SyncEvent {
	return SyncEvent{Kind: KindResetToStart}
}

func (ev SyncEvent) String() string {
	if ev.Kind == KindPageChanged {
		return fmt.Sprintf("%s(%d)", ev.Kind, ev.Page)
	}
	return ev.Kind.String()
}

type frame struct {
	Event string `json:"event"`
	Page  *int   `json:"page,omitempty"`
}

func Encode(ev SyncEvent) ([]byte, error) {
	switch ev.Kind {
	case KindPageChanged:
		if ev.Page < 0 {
			return nil, &FrameError{Reason: fmt.Sprintf("negative page %d", ev.Page)}
		}
		page := ev.Page
		return json.Marshal(frame{Event: EventPageFlip, Page: &page})
	case KindResetToStart:
		return json.Marshal(frame{Event: EventResetPage})
	default:
		return nil, &FrameError{Reason: fmt.Sprintf("unknown event kind %d", ev.Kind)}
	}
}

// Decode validates data against the frame schema before mapping it to a
// SyncEvent.
func Decode(data []byte) (SyncEvent, error) {
	if err := validateFrame(data); err != nil {
		return SyncEvent{}, err
	}
	var f frame
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&f); err != nil {
		return SyncEvent{}, &FrameError{Reason: "malformed json", Err: err}
	}
	switch f.Event {
	case EventPageFlip:
		return PageChanged(*f.Page), nil
	case EventResetPage:
		return ResetToStart(), nil
	default:
		return SyncEvent{}, &FrameError{Reason: fmt.Sprintf("unknown event %q", f.Event)}
	}
}

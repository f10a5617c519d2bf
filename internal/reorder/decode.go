package reorder

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

type rawRef struct {
	Kind  string `mapstructure:"kind"`
	ID    string `mapstructure:"id"`
	Group string `mapstructure:"group"`
}

type rawEvent struct {
	Type   string  `mapstructure:"type"`
	Source *rawRef `mapstructure:"source"`
	Target *rawRef `mapstructure:"target"`
}

// DecodeEvent converts an untyped event payload, as delivered by a host UI or
// read from a plan file, into a typed Event. The payload shape is
//
//	{"type": "start|over|end|cancel",
//	 "source": {"kind": "page|document", "id": "...", "group": "..."},
//	 "target": {"kind": "page|document", "id": "..."}}
//
// The kind of the dragged entity is decided here, once per gesture.
func DecodeEvent(payload map[string]any) (Event, error) {
	var raw rawEvent
	if err := mapstructure.Decode(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode drag event: %w", err)
	}

	switch raw.Type {
	case "start":
		if raw.Source == nil {
			return nil, fmt.Errorf("start event has no source")
		}
		entity, err := decodeEntity(*raw.Source)
		if err != nil {
			return nil, err
		}
		return DragStart{Entity: entity}, nil
	case "over":
		if raw.Target == nil {
			return nil, fmt.Errorf("over event has no target")
		}
		target, err := decodeTarget(*raw.Target)
		if err != nil {
			return nil, err
		}
		return DragOver{Target: target}, nil
	case "end":
		if raw.Target == nil {
			return DragEnd{}, nil
		}
		target, err := decodeTarget(*raw.Target)
		if err != nil {
			return nil, err
		}
		return DragEnd{Target: target}, nil
	case "cancel":
		return DragCancel{}, nil
	default:
		return nil, fmt.Errorf("unknown drag event type %q", raw.Type)
	}
}

func decodeEntity(ref rawRef) (DraggedEntity, error) {
	if ref.ID == "" {
		return nil, fmt.Errorf("dragged entity has no id")
	}
	switch ref.Kind {
	case "page":
		return DraggedPage{ID: ref.ID, GroupID: ref.Group}, nil
	case "document":
		return DraggedDocument{ID: ref.ID}, nil
	default:
		return nil, fmt.Errorf("unknown dragged entity kind %q", ref.Kind)
	}
}

func decodeTarget(ref rawRef) (Target, error) {
	if ref.ID == "" {
		return nil, fmt.Errorf("drag target has no id")
	}
	switch ref.Kind {
	case "page":
		return PageTarget{ID: ref.ID}, nil
	case "document":
		return DocumentTarget{ID: ref.ID}, nil
	default:
		return nil, fmt.Errorf("unknown drag target kind %q", ref.Kind)
	}
}

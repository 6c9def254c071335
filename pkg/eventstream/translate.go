package eventstream

import (
	"fmt"
	"time"

	"github.com/cuemby/bkmsync/pkg/types"
)

// RawEvent is the wire shape of one inbound server event: a type tag,
// an id, an ISO-8601 timestamp, and a type-specific payload.
type RawEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Namespace string    `json:"namespace"`
	ParentID  string    `json:"parentId,omitempty"`
	Title     string    `json:"title,omitempty"`
	URL       string    `json:"url,omitempty"`
	IsOpen    *bool     `json:"isOpen,omitempty"`
	Index     *int      `json:"index,omitempty"`
}

// errUnrecognizedEvent marks an event whose type isn't in the
// translation table; callers log and drop it, never fail the stream.
var errUnrecognizedEvent = fmt.Errorf("unrecognized event type")

// Translate converts one inbound event into an operation, per the fixed
// mapping in the external-interfaces contract. It validates only the
// fields required for its type; anything else is zero-valued and
// unused by apply().
func Translate(ev RawEvent) (types.Operation, error) {
	op := types.Operation{Namespace: ev.Namespace}
	switch ev.Type {
	case "bookmark_created", "bookmark_updated":
		if ev.ID == "" || ev.ParentID == "" {
			return op, fmt.Errorf("%s: missing id/parentId", ev.Type)
		}
		op.Tag = types.OpCreateBookmark
		op.NodeID = ev.ID
		op.ParentID = ev.ParentID
		op.Title = ev.Title
		op.URL = ev.URL
		op.Index = ev.Index
		return op, nil

	case "folder_created", "folder_updated":
		if ev.ID == "" || ev.ParentID == "" {
			return op, fmt.Errorf("%s: missing id/parentId", ev.Type)
		}
		op.Tag = types.OpCreateFolder
		op.NodeID = ev.ID
		op.ParentID = ev.ParentID
		op.Title = ev.Title
		op.IsOpen = ev.IsOpen
		op.Index = ev.Index
		return op, nil

	case "bookmark_deleted", "folder_deleted":
		if ev.ID == "" {
			return op, fmt.Errorf("%s: missing id", ev.Type)
		}
		op.Tag = types.OpRemoveNode
		op.TargetID = ev.ID
		return op, nil

	case "item_moved":
		if ev.ID == "" || ev.ParentID == "" {
			return op, fmt.Errorf("%s: missing id/parentId", ev.Type)
		}
		op.Tag = types.OpMoveNode
		op.TargetID = ev.ID
		op.ToFolderID = ev.ParentID
		op.Index = ev.Index
		return op, nil

	case "folder_toggled":
		if ev.ID == "" || ev.IsOpen == nil {
			return op, fmt.Errorf("%s: missing id/isOpen", ev.Type)
		}
		op.Tag = types.OpToggleFolder
		op.FolderID = ev.ID
		op.Open = ev.IsOpen
		return op, nil

	default:
		return op, errUnrecognizedEvent
	}
}

// IsUnrecognized reports whether err came from an event type outside
// the translation table, as opposed to a malformed known-type event.
// Both are dropped the same way, but callers may want to log
// differently (unknown vs malformed) without probing error strings.
func IsUnrecognized(err error) bool {
	return err == errUnrecognizedEvent
}

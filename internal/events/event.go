package events

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Action is the kind of change reported for a path.
type Action string

const (
	ActionDeposit Action = "DEPOSIT"
	ActionRemove  Action = "REMOVE"
	ActionMkdir   Action = "MKDIR"
	ActionRmdir   Action = "RMDIR"
	ActionSymlink Action = "SYMLINK"
	// ActionReadme flags a notice file. Downstream consumers expect the file
	// name itself as the action.
	ActionReadme Action = "00README"
)

// Actions lists every action in emission order.
func Actions() []Action {
	return []Action{ActionDeposit, ActionSymlink, ActionRemove, ActionMkdir, ActionRmdir, ActionReadme}
}

// TimeLayout renders local time with a '-' between date and time, matching
// the deposit log format consumers already parse.
const TimeLayout = "2006-01-02-15:04:05.000000"

// ChangeEvent reports one filesystem change to the indexing pipeline.
type ChangeEvent struct {
	Time    time.Time
	Path    string
	Action  Action
	Size    int64
	Message string
}

// New stamps an event with the current local time.
func New(action Action, path string) ChangeEvent {
	return ChangeEvent{Time: time.Now(), Path: path, Action: action}
}

type wireEvent struct {
	Datetime string `json:"datetime"`
	Filepath string `json:"filepath"`
	Action   string `json:"action"`
	Filesize int64  `json:"filesize"`
	Message  string `json:"message"`
}

// Encoder turns events into message bodies.
type Encoder interface {
	ContentType() string
	Encode(ChangeEvent) ([]byte, error)
}

// JSONEncoder produces {"datetime","filepath","action","filesize","message"} objects.
type JSONEncoder struct{}

func (JSONEncoder) ContentType() string { return "application/json" }

func (JSONEncoder) Encode(ev ChangeEvent) ([]byte, error) {
	return json.Marshal(wireEvent{
		Datetime: ev.Time.Format(TimeLayout),
		Filepath: ev.Path,
		Action:   string(ev.Action),
		Filesize: ev.Size,
		Message:  ev.Message,
	})
}

// TextEncoder produces deposit-log lines: time:path:ACTION:size:
// The size field is the current file size, or empty when the path cannot be
// stat'ed (for example after a removal).
type TextEncoder struct{}

func (TextEncoder) ContentType() string { return "text/plain" }

func (TextEncoder) Encode(ev ChangeEvent) ([]byte, error) {
	size := ""
	if info, err := os.Stat(ev.Path); err == nil {
		size = strconv.FormatInt(info.Size(), 10)
	}
	return fmt.Appendf(nil, "%s:%s:%s:%s:", ev.Time.Format(TimeLayout), ev.Path, ev.Action, size), nil
}

// EncoderFor maps the broker.message_format setting to an encoder.
func EncoderFor(format string) (Encoder, error) {
	switch format {
	case "", "json":
		return JSONEncoder{}, nil
	case "text":
		return TextEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown message format %q", format)
	}
}

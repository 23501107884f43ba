package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// CompatibleVersion is the daemon protocol version this front-end speaks.
const CompatibleVersion = 0.9

// MaxFrameSize bounds a single inbound frame.
const MaxFrameSize = 16 << 20

const (
	CmdVersion       = "VERSION"
	CmdListTags      = "LISTTAGS"
	CmdWatchTags     = "WATCHTAGS"
	CmdWatchNewTags  = "WATCHNEWTAGS"
	CmdWatchDelTags  = "WATCHDELTAGS"
	CmdWatchConfigs  = "WATCHCONFIGS"
	CmdConfigs       = "CONFIGS"
	CmdSetConfigs    = "SETCONFIGS"
	CmdDelConfigs    = "DELCONFIGS"
	CmdAutoAttr      = "AUTOATTR"
	CmdAttributes    = "ATTRIBUTES"
	CmdSetAttributes = "SETATTRIBUTES"
	CmdItems         = "ITEMS"
	CmdTransform     = "TRANSFORM"
	CmdPing          = "PING"
	CmdDie           = "DIE"
	CmdProtect       = "PROTECT"
	CmdUnprotect     = "UNPROTECT"

	CmdNewTags   = "NEWTAGS"
	CmdDelTags   = "DELTAGS"
	CmdTagChange = "TAGCHANGE"
	CmdItemsDone = "ITEMSDONE"
	CmdPong      = "PONG"
	CmdErrors    = "ERRORS"
	CmdInfo      = "INFO"
	CmdExcept    = "EXCEPT"
)

var ErrFrameTooLarge = errors.New("protocol frame too large")

// Message is one framed (command, args) pair. Args stay encoded until a
// consumer decodes them into a typed variant.
type Message struct {
	Cmd  string
	Args json.RawMessage
}

func (m Message) MarshalJSON() ([]byte, error) {
	args := m.Args
	if len(args) == 0 {
		args = json.RawMessage("null")
	}
	return json.Marshal([]any{m.Cmd, args})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode frame: expected [cmd, args], got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &m.Cmd); err != nil {
		return fmt.Errorf("decode frame command: %w", err)
	}
	m.Args = append(json.RawMessage(nil), pair[1]...)
	return nil
}

func NewMessage(cmd string, args any) (Message, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s args: %w", cmd, err)
	}
	return Message{Cmd: cmd, Args: raw}, nil
}

// Encoder writes NUL-terminated JSON frames. It is safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(cmd string, args any) error {
	msg, err := NewMessage(cmd, args)
	if err != nil {
		return err
	}
	return e.EncodeMessage(msg)
}

func (e *Encoder) EncodeMessage(msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", msg.Cmd, err)
	}
	body = append(body, 0)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(body); err != nil {
		return fmt.Errorf("write %s frame: %w", msg.Cmd, err)
	}
	return nil
}

type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64<<10)}
}

// Decode reads the next frame. It returns io.EOF when the peer closed the
// stream between frames.
func (d *Decoder) Decode() (Message, error) {
	for {
		body, err := d.frame()
		if err != nil {
			return Message{}, err
		}
		if len(body) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			return Message{}, err
		}
		return msg, nil
	}
}

func (d *Decoder) frame() ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := d.r.ReadSlice(0)
		buf.Write(chunk)
		if buf.Len() > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(bytes.TrimSpace(buf.Bytes())) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return bytes.TrimSpace(buf.Bytes()[:buf.Len()-1]), nil
}

package wire

import "github.com/vmihailenco/msgpack/v5"

// RPC is the tagged-union envelope carried inside one CLI-host frame.
// Exactly one of Command/CommandResponse is populated, selected by Tag.
type RPC struct {
	Tag Tag `msgpack:"tag"`

	// Command fields.
	Name    string   `msgpack:"name,omitempty"`
	Args    []string `msgpack:"args,omitempty"`
	ReplyID uint32   `msgpack:"reply_id"`

	// CommandResponse fields.
	Success         bool   `msgpack:"success,omitempty"`
	ResponseKind    int    `msgpack:"response_kind,omitempty"`
	ResponseText    string `msgpack:"response_text,omitempty"`
	ResponseBytes   []byte `msgpack:"response_bytes,omitempty"`
	ResponseFiles   []byte `msgpack:"response_files,omitempty"`  // msgpack-encoded []response.File (sans Contents)
	ResponseImages  []byte `msgpack:"response_images,omitempty"` // msgpack-encoded []response.Image (sans Pixels)
	NumAttachments  int    `msgpack:"num_attachments,omitempty"`

	// attachments holds the reassembled attachment frames for a decoded
	// CommandResponse once the reader has drained NumAttachments follow-on
	// frames. Never serialized: it is populated after DecodeRPC by the
	// caller, not carried on the wire.
	attachments [][]byte `msgpack:"-"`
}

// Attachments returns the reassembled attachment parts a receiver attached
// to this envelope after draining NumAttachments follow-on frames.
func (r RPC) Attachments() [][]byte { return r.attachments }

// WithAttachments returns a copy of r with its attachments set. Used by
// readers that drain follow-on frames after decoding the envelope itself.
func (r RPC) WithAttachments(parts [][]byte) RPC {
	r.attachments = parts
	return r
}

// Tag selects which variant of RPC is populated.
type Tag int

const (
	TagCommand Tag = iota
	TagCommandResponse
)

// EncodeRPC serializes an RPC envelope using a compact self-describing
// binary encoding, the same one used throughout the CLI channel.
func EncodeRPC(r RPC) ([]byte, error) {
	return msgpack.Marshal(r)
}

// DecodeRPC parses a serialized RPC envelope.
func DecodeRPC(b []byte) (RPC, error) {
	var r RPC
	err := msgpack.Unmarshal(b, &r)
	return r, err
}

// Package response defines the tagged-union response body exchanged between
// a registered command/tool and its caller, and the split/merge operations
// that detach large payloads into ordered attachment frames.
//
// Exactly one of the Text/Bytes/Files/Images fields is populated at a
// time; which one is determined by Kind. This is one struct with several
// optional groups of fields rather than a Go interface, since the wire
// encoding (msgpack for the CLI channel, JSON for the MCP channel) needs a
// single concrete type to decode into.
package response

import "fmt"

// Kind identifies which variant of Response is populated.
type Kind int

const (
	KindString Kind = iota
	KindBytes
	KindFiles
	KindImages
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindFiles:
		return "files"
	case KindImages:
		return "images"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// File is one element of a Files response.
type File struct {
	ProposedExtension string `msgpack:"ext" json:"proposed_extension"`
	Remark            string `msgpack:"remark,omitempty" json:"remark,omitempty"`
	Contents          []byte `msgpack:"contents" json:"contents,omitempty"`
}

// Image is one element of an Images response.
//
// Pixels is a flat RGBA8 stream, 4 bytes per pixel, row-major: len(Pixels)
// is always 4*pixelCount. Width and Height are measured in pixels.
//
// Invariant: pixelCount (= len(Pixels)/4) is a multiple of Width, and
// Height = pixelCount/Width.
type Image struct {
	Pixels []byte `msgpack:"-" json:"-"`
	Width  int    `msgpack:"width" json:"width"`
	Height int    `msgpack:"height" json:"height"`
	Remark string `msgpack:"remark,omitempty" json:"remark,omitempty"`
}

// NewImage builds an Image and computes Height from pixelCount/width,
// enforcing the Image invariant above. pixels is the flat RGBA8 byte
// stream (4 bytes per pixel).
func NewImage(pixels []byte, width int, remark string) (Image, error) {
	if width <= 0 {
		return Image{}, fmt.Errorf("response: image width must be positive, got %d", width)
	}
	if len(pixels)%4 != 0 {
		return Image{}, fmt.Errorf("response: pixel byte stream length %d is not a multiple of 4", len(pixels))
	}
	pixelCount := len(pixels) / 4
	if pixelCount%width != 0 {
		return Image{}, fmt.Errorf("response: pixel count %d is not a multiple of width %d", pixelCount, width)
	}
	return Image{
		Pixels: pixels,
		Width:  width,
		Height: pixelCount / width,
		Remark: remark,
	}, nil
}

// Response is the tagged union returned by a command or tool invocation.
type Response struct {
	Kind   Kind
	Text   string  `msgpack:"-"`
	Bytes  []byte  `msgpack:"-"`
	Files  []File  `msgpack:"-"`
	Images []Image `msgpack:"-"`
}

// String builds a String-kind Response.
func String(text string) Response { return Response{Kind: KindString, Text: text} }

// Bytes builds a Bytes-kind Response.
func Bytes(b []byte) Response { return Response{Kind: KindBytes, Bytes: b} }

// FilesOf builds a Files-kind Response.
func FilesOf(files ...File) Response { return Response{Kind: KindFiles, Files: files} }

// ImagesOf builds an Images-kind Response.
func ImagesOf(images ...Image) Response { return Response{Kind: KindImages, Images: images} }

// NumAttachments reports how many attachment parts Split will produce for
// this response: one for Bytes, one per file, one per image, none for
// String. Empty payloads are counted too.
func (r Response) NumAttachments() int {
	switch r.Kind {
	case KindBytes:
		return 1
	case KindFiles:
		return len(r.Files)
	case KindImages:
		return len(r.Images)
	default:
		return 0
	}
}

// Split detaches large payloads from r into an ordered slice of attachment
// byte slices, leaving r's own payload slots empty.
func Split(r *Response) [][]byte {
	switch r.Kind {
	case KindString:
		return nil
	case KindBytes:
		parts := [][]byte{r.Bytes}
		r.Bytes = nil
		return parts
	case KindFiles:
		parts := make([][]byte, len(r.Files))
		for i := range r.Files {
			parts[i] = r.Files[i].Contents
			r.Files[i].Contents = nil
		}
		return parts
	case KindImages:
		parts := make([][]byte, len(r.Images))
		for i := range r.Images {
			parts[i] = r.Images[i].Pixels
			r.Images[i].Pixels = nil
		}
		return parts
	default:
		return nil
	}
}

// Merge consumes parts (in the order Split produced them) and reassembles
// r's payload slots.
func Merge(r *Response, parts [][]byte) error {
	switch r.Kind {
	case KindString:
		return nil
	case KindBytes:
		if len(parts) != 1 {
			return fmt.Errorf("response: bytes response expects 1 attachment, got %d", len(parts))
		}
		r.Bytes = parts[0]
		return nil
	case KindFiles:
		if len(parts) != len(r.Files) {
			return fmt.Errorf("response: files response expects %d attachments, got %d", len(r.Files), len(parts))
		}
		for i := range r.Files {
			r.Files[i].Contents = parts[i]
		}
		return nil
	case KindImages:
		if len(parts) != len(r.Images) {
			return fmt.Errorf("response: images response expects %d attachments, got %d", len(r.Images), len(parts))
		}
		for i := range r.Images {
			part := parts[i]
			if len(part)%4 != 0 {
				return fmt.Errorf("response: image attachment %d length %d is not a multiple of 4", i, len(part))
			}
			// Width/Height travel in the envelope, not the attachment; the
			// attachment only carries the pixel stream.
			r.Images[i].Pixels = part
		}
		return nil
	default:
		return fmt.Errorf("response: unknown kind %v", r.Kind)
	}
}

// Package frame implements the length-prefixed message framing shared by the
// chat server and client.
//
// # Wire format
//
//	[header: Width bytes][payload: N bytes]
//
//   - header: ASCII decimal N, left-aligned and padded with spaces (0x20) up
//     to Width bytes. The header is always ASCII regardless of Format.
//   - payload: the text encoded with Format. N is the encoded byte length.
//
// A Codec is stateless and safe for concurrent use; callers that share a
// connection between goroutines must serialize writes themselves.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	// DefaultWidth is the header width used by the reference protocol.
	DefaultWidth = 64
	// DefaultFormat is the payload text encoding used by the reference protocol.
	DefaultFormat = "utf-8"
	// DefaultMaxSize bounds the payload a Codec accepts unless overridden.
	DefaultMaxSize = 1 << 20

	padding = ' '
)

var (
	// ErrMalformedHeader reports a header that is not a non-negative decimal integer.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrMessageTooLarge reports a payload that does not fit the header or the size limit.
	ErrMessageTooLarge = errors.New("message too large")
)

// TransportError wraps every failure raised while reading or writing a frame.
// A peer that closes the stream cleanly between frames yields a TransportError
// wrapping io.EOF; a close in the middle of a frame wraps io.ErrUnexpectedEOF.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("frame: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Option customizes a Codec.
type Option func(*Codec)

// WithMaxSize caps the payload size in bytes. Non-positive values are ignored.
func WithMaxSize(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// Codec encodes and decodes framed text messages.
type Codec struct {
	width   int
	format  string
	maxSize int

	// nil when the payload is UTF-8 and needs no transcoding.
	enc encoding.Encoding
}

// NewCodec returns a Codec with the given header width and payload format.
// The format is any encoding label known to the WHATWG encoding index
// ("utf-8", "latin1", "utf-16le", ...).
func NewCodec(width int, format string, opts ...Option) (*Codec, error) {
	if width <= 0 {
		return nil, fmt.Errorf("frame: header width must be positive, got %d", width)
	}
	if format == "" {
		format = DefaultFormat
	}

	enc, err := htmlindex.Get(format)
	if err != nil {
		return nil, fmt.Errorf("frame: unknown format %q: %w", format, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return nil, fmt.Errorf("frame: unknown format %q: %w", format, err)
	}
	if name == "utf-8" {
		enc = nil
	}

	c := &Codec{
		width:   width,
		format:  format,
		maxSize: DefaultMaxSize,
		enc:     enc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Default returns the reference codec: a 64 byte header and UTF-8 payloads.
func Default() *Codec {
	c, err := NewCodec(DefaultWidth, DefaultFormat)
	if err != nil {
		panic(err)
	}
	return c
}

// Width returns the header width in bytes.
func (c *Codec) Width() int {
	return c.width
}

// Format returns the configured payload encoding label.
func (c *Codec) Format() string {
	return c.format
}

// MaxSize returns the largest payload, in bytes, this Codec will write or read.
func (c *Codec) MaxSize() int {
	return min(c.maxSize, maxRepresentable(c.width))
}

// Encode returns the complete frame for text.
func (c *Codec) Encode(text string) ([]byte, error) {
	payload, err := c.encodePayload(text)
	if err != nil {
		return nil, &TransportError{Op: "encode", Err: err}
	}
	if len(payload) > c.MaxSize() {
		return nil, &TransportError{
			Op:  "encode",
			Err: fmt.Errorf("%w: %d bytes exceeds %d", ErrMessageTooLarge, len(payload), c.MaxSize()),
		}
	}

	length := strconv.Itoa(len(payload))
	buf := make([]byte, 0, c.width+len(payload))
	buf = append(buf, length...)
	buf = append(buf, bytes.Repeat([]byte{padding}, c.width-len(length))...)
	buf = append(buf, payload...)
	return buf, nil
}

// WriteMessage writes text as a single frame. The header and payload are
// handed to w in one Write call.
func (c *Codec) WriteMessage(w io.Writer, text string) error {
	buf, err := c.Encode(text)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// ReadMessage reads exactly one frame from r and returns its decoded text.
// It never returns a partially received payload.
func (c *Codec) ReadMessage(r io.Reader) (string, error) {
	header := make([]byte, c.width)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", &TransportError{Op: "read header", Err: err}
	}

	n, err := c.parseHeader(header)
	if err != nil {
		return "", &TransportError{Op: "read header", Err: err}
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", &TransportError{Op: "read payload", Err: err}
	}

	text, err := c.decodePayload(payload)
	if err != nil {
		return "", &TransportError{Op: "decode", Err: err}
	}
	return text, nil
}

func (c *Codec) parseHeader(header []byte) (int, error) {
	raw := strings.TrimSpace(string(header))
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedHeader, raw)
	}
	if n > c.MaxSize() {
		return 0, fmt.Errorf("%w: declared %d bytes exceeds %d", ErrMessageTooLarge, n, c.MaxSize())
	}
	return n, nil
}

func (c *Codec) encodePayload(text string) ([]byte, error) {
	if c.enc == nil {
		return []byte(text), nil
	}
	return c.enc.NewEncoder().Bytes([]byte(text))
}

func (c *Codec) decodePayload(payload []byte) (string, error) {
	if c.enc == nil {
		return string(payload), nil
	}
	out, err := c.enc.NewDecoder().Bytes(payload)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// maxRepresentable is the largest decimal value with at most width digits.
func maxRepresentable(width int) int {
	n := 0
	for range width {
		if n > (math.MaxInt-9)/10 {
			return math.MaxInt
		}
		n = n*10 + 9
	}
	return n
}

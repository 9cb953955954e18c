// Package eventstream incrementally decodes the AWS-style binary
// EventStream framing used by the upstream service: a self-delimiting
// sequence of {headers, payload} messages carrying JSON.
//
// This generalizes the single-shot, io.ReadFull-based decoder in
// digitallysavvy-go-ai's pkg/providers/bedrock/anthropic/stream.go into
// one that accepts byte chunks of arbitrary size and boundary (Feed),
// tolerates corruption by resyncing a byte at a time, and does not
// verify the prelude/message CRCs — the upstream's wire format is
// unchanged, but this gateway does not require CRC validation from any
// consumer.
package eventstream

import (
	"encoding/binary"
	"io"

	"github.com/kiro-gateway/gateway/pkg/gatewayerrors"
)

const (
	preludeLen    = 12 // total_length(4) + headers_length(4) + prelude_crc(4)
	trailerLen    = 4  // message_crc(4)
	minFrameLen   = 16
	maxFrameLen   = 16 * 1024 * 1024
	headerNameMax = 255
)

// Message is a fully decoded frame: its header set and raw payload bytes.
type Message struct {
	Headers map[string]HeaderValue
	Payload []byte
}

// HeaderValueType enumerates the wire tags of §3's header grammar.
type HeaderValueType uint8

const (
	HeaderTrue HeaderValueType = iota
	HeaderFalse
	HeaderInt8
	HeaderInt16
	HeaderInt32
	HeaderInt64
	HeaderBytes
	HeaderUTF8
	HeaderTimestamp
	HeaderUUID
)

// HeaderValue is a decoded header value, tagged by its wire type.
// Only one of the typed fields is populated, per Type.
type HeaderValue struct {
	Type HeaderValueType
	Bool bool
	Int  int64
	Str  string // populated for Bytes (raw), UTF8, and UUID (canonical hex)
	Raw  []byte // populated for Bytes
}

// String renders the header's value as the interpreter consumes it:
// most well-known headers (:message-type, :event-type, :content-type)
// are UTF8-typed in practice, so this is the common read path.
func (h HeaderValue) String() string {
	switch h.Type {
	case HeaderUTF8, HeaderUUID:
		return h.Str
	case HeaderBytes:
		return h.Str
	case HeaderTrue:
		return "true"
	case HeaderFalse:
		return "false"
	default:
		return ""
	}
}

// Decoder accumulates byte chunks and yields whole messages in arrival
// order. It owns a residual buffer for data not yet forming a complete
// frame and is not safe for concurrent use — per spec §5 it is owned by
// exactly one stream task.
type Decoder struct {
	buf       []byte
	maxErrors int
	errCount  int
	failed    error
}

// NewDecoder creates a Decoder with the given error budget (spec §4.A's
// max_errors). A non-positive budget means the decoder never fails:
// errors are still counted, and a truncated frame only waits for more
// bytes.
func NewDecoder(maxErrors int) *Decoder {
	return &Decoder{maxErrors: maxErrors}
}

// Feed appends newly arrived bytes to the residual buffer. It does not
// itself decode; call Next in a loop afterward to drain whole messages.
func (d *Decoder) Feed(chunk []byte) {
	d.buf = append(d.buf, chunk...)
}

// Reset discards all decoder state, per spec §4.A's reset() contract.
func (d *Decoder) Reset() {
	d.buf = nil
	d.errCount = 0
	d.failed = nil
}

// Next attempts to decode one whole message from the buffered bytes.
// It returns (msg, true, nil) when a message was decoded, (nil, false,
// nil) when more bytes are needed, and (nil, false, err) once the error
// budget has been exhausted (terminal — the caller should stop reading).
// Next should be called repeatedly until it reports "need more bytes",
// since one Feed may unblock several whole frames at once.
func (d *Decoder) Next() (*Message, bool, error) {
	if d.failed != nil {
		return nil, false, d.failed
	}

	for {
		if len(d.buf) < minFrameLen {
			return nil, false, nil
		}

		totalLength := binary.BigEndian.Uint32(d.buf[0:4])
		if totalLength < minFrameLen || totalLength > maxFrameLen {
			if totalLength > maxFrameLen {
				d.recordError(gatewayerrors.NewFrameTooLargeError(totalLength))
			} else {
				d.recordError(gatewayerrors.NewMalformedFrameError(totalLength, "total_length below 16"))
			}
			if d.failed != nil {
				return nil, false, d.failed
			}
			d.buf = d.buf[1:] // one-byte resync
			continue
		}

		if uint32(len(d.buf)) < totalLength {
			return nil, false, nil // wait for more bytes
		}

		frame := d.buf[:totalLength]
		d.buf = d.buf[totalLength:]

		msg, err := d.parseFrame(frame, totalLength)
		if err != nil {
			// Steps 4-5 exception: count an error and move to the next frame,
			// per spec §4.A step 6 — a single bad frame must not kill the stream.
			d.recordError(err)
			if d.failed != nil {
				return nil, false, d.failed
			}
			continue
		}
		return msg, true, nil
	}
}

func (d *Decoder) recordError(err error) {
	d.errCount++
	if d.maxErrors > 0 && d.errCount > d.maxErrors {
		d.failed = gatewayerrors.NewErrorBudgetExhaustedError(d.maxErrors)
	}
}

func (d *Decoder) parseFrame(frame []byte, totalLength uint32) (*Message, error) {
	headersLength := binary.BigEndian.Uint32(frame[4:8])
	if uint64(headersLength) > uint64(totalLength)-minFrameLen {
		return nil, gatewayerrors.NewBadHeaderError("headers_length exceeds frame bounds", nil)
	}

	headersStart := preludeLen
	headersEnd := headersStart + int(headersLength)
	payloadEnd := int(totalLength) - trailerLen
	if headersEnd > payloadEnd {
		return nil, gatewayerrors.NewBadHeaderError("headers_length exceeds frame bounds", nil)
	}

	headerBytes := frame[headersStart:headersEnd]
	payload := frame[headersEnd:payloadEnd]

	// CRC bytes (prelude_crc at [8:12], message_crc at the trailer) are
	// read as part of the frame's fixed layout but intentionally never
	// verified, per spec §3/§9 ("the source skips CRC verification...
	// not required by any consumer").

	headers := parseHeaders(headerBytes)

	return &Message{Headers: headers, Payload: payload}, nil
}

// parseHeaders decodes the {name_len, name, value_type, value}* grammar.
// On a malformed header (unknown tag, or a length exceeding the
// remaining bytes) it stops and returns whatever was decoded so far,
// per spec §4.A step 5 — a partial header set is preferred over
// discarding the message.
func parseHeaders(data []byte) map[string]HeaderValue {
	headers := make(map[string]HeaderValue)
	r := data

	for len(r) > 0 {
		if len(r) < 1 {
			break
		}
		nameLen := int(r[0])
		r = r[1:]
		if len(r) < nameLen+1 {
			break
		}
		name := string(r[:nameLen])
		r = r[nameLen:]

		valueType := HeaderValueType(r[0])
		r = r[1:]

		value, rest, ok := decodeHeaderValue(valueType, r)
		if !ok {
			break
		}
		headers[name] = value
		r = rest
	}

	return headers
}

func decodeHeaderValue(tag HeaderValueType, r []byte) (HeaderValue, []byte, bool) {
	switch tag {
	case HeaderTrue:
		return HeaderValue{Type: HeaderTrue, Bool: true}, r, true
	case HeaderFalse:
		return HeaderValue{Type: HeaderFalse, Bool: false}, r, true
	case HeaderInt8:
		if len(r) < 1 {
			return HeaderValue{}, nil, false
		}
		return HeaderValue{Type: HeaderInt8, Int: int64(int8(r[0]))}, r[1:], true
	case HeaderInt16:
		if len(r) < 2 {
			return HeaderValue{}, nil, false
		}
		return HeaderValue{Type: HeaderInt16, Int: int64(int16(binary.BigEndian.Uint16(r)))}, r[2:], true
	case HeaderInt32:
		if len(r) < 4 {
			return HeaderValue{}, nil, false
		}
		return HeaderValue{Type: HeaderInt32, Int: int64(int32(binary.BigEndian.Uint32(r)))}, r[4:], true
	case HeaderInt64:
		if len(r) < 8 {
			return HeaderValue{}, nil, false
		}
		return HeaderValue{Type: HeaderInt64, Int: int64(binary.BigEndian.Uint64(r))}, r[8:], true
	case HeaderBytes, HeaderUTF8:
		if len(r) < 2 {
			return HeaderValue{}, nil, false
		}
		n := int(binary.BigEndian.Uint16(r))
		r = r[2:]
		if len(r) < n {
			return HeaderValue{}, nil, false
		}
		b := r[:n]
		return HeaderValue{Type: tag, Str: string(b), Raw: b}, r[n:], true
	case HeaderTimestamp:
		if len(r) < 8 {
			return HeaderValue{}, nil, false
		}
		return HeaderValue{Type: HeaderTimestamp, Int: int64(binary.BigEndian.Uint64(r))}, r[8:], true
	case HeaderUUID:
		if len(r) < 16 {
			// Testable property #12: a declared UUID whose length isn't
			// exactly 16 bytes falls back to a UTF-8 decode of whatever
			// bytes remain, rather than failing the whole header parse.
			b := r
			return HeaderValue{Type: HeaderUUID, Str: string(b)}, nil, true
		}
		b := r[:16]
		return HeaderValue{Type: HeaderUUID, Str: formatUUID(b)}, r[16:], true
	default:
		return HeaderValue{}, nil, false
	}
}

func formatUUID(b []byte) string {
	const hextable = "0123456789abcdef"
	buf := make([]byte, 36)
	pos := 0
	dashAfter := map[int]bool{4: true, 6: true, 8: true, 10: true}
	for i, c := range b {
		buf[pos] = hextable[c>>4]
		buf[pos+1] = hextable[c&0x0f]
		pos += 2
		if dashAfter[i+1] {
			buf[pos] = '-'
			pos++
		}
	}
	return string(buf[:pos])
}

// DecodeAll drains r until EOF, feeding it through the Decoder in
// 32 KiB chunks, as a simple blocking API over Feed/Next. Nothing in
// this module calls it: both the streaming and the non-stream paths
// drive Feed/Next through pkg/gatewayhttp's pumpEventstream.
func DecodeAll(r io.Reader, maxErrors int, onMessage func(*Message) error) error {
	d := NewDecoder(maxErrors)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
			for {
				msg, ok, err := d.Next()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				if err := onMessage(msg); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// Package dynamicoi runs a python module under a tracer in a child process
// and collects what each traced function received and returned. The child
// streams call records to a loopback listener in the parent.
package dynamicoi

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jward/pysem/internal/store"
)

// WireVersion is the record format version written by the tracer.
const WireVersion = 1

// maxRecordSize bounds one frame so a corrupt length prefix cannot make the
// reader allocate without limit.
const maxRecordSize = 1 << 20

var (
	// ErrUnsupportedVersion is returned for records of an unknown format.
	ErrUnsupportedVersion = errors.New("dynamicoi: unsupported record version")
	// ErrMalformedRecord is returned for frames that do not decode.
	ErrMalformedRecord = errors.New("dynamicoi: malformed record")
)

// Record field numbers.
const (
	fieldVersion protowire.Number = 1
	fieldPath    protowire.Number = 2
	fieldLine    protowire.Number = 3
	fieldArg     protowire.Number = 4
	fieldReturn  protowire.Number = 5
)

// Descriptor field numbers.
const (
	fieldKind    protowire.Number = 1
	fieldDefPath protowire.Number = 2
	fieldDefLine protowire.Number = 3
	fieldBuiltin protowire.Number = 4
)

// Record is one observed call of the function defined at Path:Line.
type Record struct {
	Path   string
	Line   int
	Args   []store.Descriptor
	Return store.Descriptor
}

// CallRecord converts r for storage.
func (r *Record) CallRecord() *store.CallRecord {
	return &store.CallRecord{Path: r.Path, Line: r.Line, Args: r.Args, Return: r.Return}
}

// AppendRecord appends the length-prefixed encoding of r to b.
func AppendRecord(b []byte, r *Record) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, fieldVersion, protowire.VarintType)
	msg = protowire.AppendVarint(msg, WireVersion)
	msg = protowire.AppendTag(msg, fieldPath, protowire.BytesType)
	msg = protowire.AppendString(msg, r.Path)
	msg = protowire.AppendTag(msg, fieldLine, protowire.VarintType)
	msg = protowire.AppendVarint(msg, uint64(r.Line))
	for _, arg := range r.Args {
		msg = protowire.AppendTag(msg, fieldArg, protowire.BytesType)
		msg = protowire.AppendBytes(msg, appendDescriptor(nil, arg))
	}
	msg = protowire.AppendTag(msg, fieldReturn, protowire.BytesType)
	msg = protowire.AppendBytes(msg, appendDescriptor(nil, r.Return))
	b = protowire.AppendVarint(b, uint64(len(msg)))
	return append(b, msg...)
}

func appendDescriptor(b []byte, d store.Descriptor) []byte {
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Kind))
	if d.Path != "" {
		b = protowire.AppendTag(b, fieldDefPath, protowire.BytesType)
		b = protowire.AppendString(b, d.Path)
	}
	if d.Line != 0 {
		b = protowire.AppendTag(b, fieldDefLine, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(d.Line))
	}
	if d.Builtin != "" {
		b = protowire.AppendTag(b, fieldBuiltin, protowire.BytesType)
		b = protowire.AppendString(b, d.Builtin)
	}
	return b
}

// Decoder reads length-prefixed records from a stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads the next record. It returns io.EOF when the stream ends
// cleanly between records.
func (d *Decoder) Decode() (*Record, error) {
	n, err := readUvarint(d.r)
	if err != nil {
		return nil, err
	}
	if n > maxRecordSize {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrMalformedRecord, n)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(d.r, msg); err != nil {
		return nil, fmt.Errorf("%w: truncated frame: %v", ErrMalformedRecord, err)
	}
	return UnmarshalRecord(msg)
}

func readUvarint(r *bufio.Reader) (uint64, error) {
	var buf []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				return 0, fmt.Errorf("%w: truncated length", ErrMalformedRecord)
			}
			return 0, err
		}
		buf = append(buf, c)
		if c < 0x80 {
			break
		}
		if len(buf) >= protowire.SizeVarint(maxRecordSize) {
			return 0, fmt.Errorf("%w: oversized length", ErrMalformedRecord)
		}
	}
	v, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
	}
	return v, nil
}

// UnmarshalRecord decodes one record message without its length prefix.
// Unknown fields are skipped.
func UnmarshalRecord(msg []byte) (*Record, error) {
	rec := &Record{}
	version := uint64(0)
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		msg = msg[n:]
		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(msg)
		case num == fieldPath && typ == protowire.BytesType:
			rec.Path, n = consumeString(msg)
		case num == fieldLine && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(msg)
			rec.Line = int(v)
		case (num == fieldArg || num == fieldReturn) && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(msg)
			if n < 0 {
				break
			}
			desc, err := unmarshalDescriptor(raw)
			if err != nil {
				return nil, err
			}
			if num == fieldArg {
				rec.Args = append(rec.Args, desc)
			} else {
				rec.Return = desc
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		msg = msg[n:]
	}
	if version != WireVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if rec.Path == "" || rec.Line <= 0 {
		return nil, fmt.Errorf("%w: missing call site", ErrMalformedRecord)
	}
	return rec, nil
}

func unmarshalDescriptor(msg []byte) (store.Descriptor, error) {
	var d store.Descriptor
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return d, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		msg = msg[n:]
		var v uint64
		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n = protowire.ConsumeVarint(msg)
			d.Kind = store.DescriptorKind(v)
		case num == fieldDefPath && typ == protowire.BytesType:
			d.Path, n = consumeString(msg)
		case num == fieldDefLine && typ == protowire.VarintType:
			v, n = protowire.ConsumeVarint(msg)
			d.Line = int(v)
		case num == fieldBuiltin && typ == protowire.BytesType:
			d.Builtin, n = consumeString(msg)
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
		}
		if n < 0 {
			return d, fmt.Errorf("%w: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		msg = msg[n:]
	}
	if d.Kind < store.DescriptorNone || d.Kind > store.DescriptorBuiltin {
		return d, fmt.Errorf("%w: descriptor kind %d", ErrMalformedRecord, d.Kind)
	}
	return d, nil
}

func consumeString(b []byte) (string, int) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return "", n
	}
	return string(v), n
}

package ntske

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"

	"example.com/nts-client/base/ntserr"
)

// NTS-KE record types
const (
	RecEom       uint16 = 0
	RecNextproto uint16 = 1
	RecError     uint16 = 2
	RecWarning   uint16 = 3
	RecAead      uint16 = 4
	RecCookie    uint16 = 5
	RecServer    uint16 = 6
	RecPort      uint16 = 7
)

const (
	criticalBit uint16 = 1 << 15

	recordHdrLen = 4
	maxBodyLen   = 1<<16 - 1
)

var (
	errTruncatedHeader = errors.New("truncated record header")
	errTruncatedBody   = errors.New("record body exceeds remaining data")
	errBodyTooLong     = errors.New("record body too long")
	errOddLength       = errors.New("record body length not a multiple of 2")
)

// Record is a single NTS-KE record. The critical bit is kept separately from
// the record type.
type Record struct {
	Type     uint16
	Critical bool
	Body     []byte
}

func uint16sRecord(t uint16, critical bool, vs ...uint16) Record {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.BigEndian.PutUint16(b[2*i:], v)
	}
	return Record{Type: t, Critical: critical, Body: b}
}

func NextProtoRecord(protos ...uint16) Record {
	return uint16sRecord(RecNextproto, true, protos...)
}

func AlgorithmRecord(algs ...uint16) Record {
	return uint16sRecord(RecAead, true, algs...)
}

func ErrorRecord(code uint16) Record {
	return uint16sRecord(RecError, true, code)
}

func WarningRecord(code uint16) Record {
	return uint16sRecord(RecWarning, true, code)
}

func CookieRecord(c []byte) Record {
	return Record{Type: RecCookie, Body: c}
}

func ServerRecord(host string, critical bool) Record {
	return Record{Type: RecServer, Critical: critical, Body: []byte(host)}
}

func PortRecord(port uint16, critical bool) Record {
	return uint16sRecord(RecPort, critical, port)
}

func EndRecord() Record {
	return Record{Type: RecEom, Critical: true}
}

// Uint16s interprets the record body as a list of big-endian 16-bit values.
func (r Record) Uint16s() ([]uint16, error) {
	if len(r.Body)%2 != 0 {
		return nil, errOddLength
	}
	s := cryptobyte.String(r.Body)
	vs := make([]uint16, 0, len(r.Body)/2)
	for !s.Empty() {
		var v uint16
		_ = s.ReadUint16(&v)
		vs = append(vs, v)
	}
	return vs, nil
}

func (r Record) String() string {
	c := ""
	if r.Critical {
		c = ", critical"
	}
	return fmt.Sprintf("record(%d%s, %d bytes)", r.Type, c, len(r.Body))
}

// Encode packs records into wire format. An end of message record is
// appended if the sequence does not already end with one.
func Encode(records []Record) ([]byte, error) {
	var b cryptobyte.Builder
	for _, r := range records {
		if len(r.Body) > maxBodyLen {
			return nil, errBodyTooLong
		}
		t := r.Type &^ criticalBit
		if r.Critical {
			t |= criticalBit
		}
		b.AddUint16(t)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes(r.Body)
		})
	}
	if len(records) == 0 || records[len(records)-1].Type != RecEom {
		b.AddUint16(RecEom | criticalBit)
		b.AddUint16(0)
	}
	return b.Bytes()
}

// Reader pulls records off a byte stream one at a time. Unknown non-critical
// records are skipped. Next returns io.EOF once the end of message record has
// been read or the stream ends cleanly on a record boundary.
type Reader struct {
	r    io.Reader
	hdr  [recordHdrLen]byte
	done bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rd *Reader) Next() (Record, error) {
	for {
		if rd.done {
			return Record{}, io.EOF
		}
		n, err := io.ReadFull(rd.r, rd.hdr[:])
		if err != nil {
			if n == 0 && err == io.EOF {
				rd.done = true
				return Record{}, io.EOF
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return Record{}, ntserr.New(ntserr.ErrProtocolViolation, "ntske: read record", errTruncatedHeader)
			}
			return Record{}, err
		}

		var t, l uint16
		s := cryptobyte.String(rd.hdr[:])
		_ = s.ReadUint16(&t) && s.ReadUint16(&l)

		r := Record{
			Type:     t &^ criticalBit,
			Critical: t&criticalBit != 0,
			Body:     make([]byte, l),
		}
		_, err = io.ReadFull(rd.r, r.Body)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Record{}, ntserr.New(ntserr.ErrProtocolViolation, "ntske: read record", errTruncatedBody)
			}
			return Record{}, err
		}

		if r.Type == RecEom {
			rd.done = true
			return r, nil
		}
		if !known(r.Type) {
			// C (Critical Bit): Determines the disposition of
			// unrecognized Record Types. Implementations which
			// receive a record with an unrecognized Record Type
			// MUST ignore the record if the Critical Bit is 0 and
			// MUST treat it as an error if the Critical Bit is 1.
			if r.Critical {
				return Record{}, ntserr.New(ntserr.ErrKeyExchangeFailed, "ntske: read record",
					fmt.Errorf("unknown record type %v with critical bit set", r.Type))
			}
			continue
		}
		return r, nil
	}
}

// Decode reads all records from b up to and including the end of message
// record.
func Decode(b []byte) ([]Record, error) {
	var rs []Record
	rd := NewReader(bytes.NewReader(b))
	for {
		r, err := rd.Next()
		if err == io.EOF {
			return rs, nil
		}
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
}

func known(t uint16) bool {
	return t <= RecPort
}

package ntp

import (
	"encoding/binary"
	"errors"
	"time"

	"example.com/nts-client/base/timemath"
)

const (
	// Seconds from Unix epoch (1970) to NTP epoch (1900), including 17 leap days
	epoch int64 = -2208988800

	nanosecondsPerSecond int64 = 1e9
	secondsPerEra        int64 = 1 << 32

	ServerPort = 123

	PacketLen = 48

	LeapIndicatorNoWarning    = 0
	LeapIndicatorInsertSecond = 1
	LeapIndicatorDeleteSecond = 2
	LeapIndicatorUnknown      = 3

	VersionMin = 1
	VersionMax = 4

	ModeReserved0        = 0
	ModeSymmetricActive  = 1
	ModeSymmetricPassive = 2
	ModeClient           = 3
	ModeServer           = 4
	ModeBroadcast        = 5
	ModeControl          = 6
	ModeReserved7        = 7
)

type Time32 struct {
	Seconds  uint16
	Fraction uint16
}

type Time64 struct {
	Seconds  uint32
	Fraction uint32
}

type Packet struct {
	LVM            uint8
	Stratum        uint8
	Poll           int8
	Precision      int8
	RootDelay      Time32
	RootDispersion Time32
	ReferenceID    uint32
	ReferenceTime  Time64
	OriginTime     Time64
	ReceiveTime    Time64
	TransmitTime   Time64
}

var (
	errUnexpectedPacketSize = errors.New("unexpected packet size")
)

func Time64FromTime(t time.Time) Time64 {
	return Time64{
		Seconds: uint32(
			t.Unix() - epoch),
		Fraction: uint32(
			int64(t.Nanosecond()) << 32 / nanosecondsPerSecond),
	}
}

// TimeFromTime64 converts an NTP timestamp to a time.Time using a reference time t0
// to resolve the NTP timestamp era ambiguity.
func TimeFromTime64(t Time64, t0 time.Time) time.Time {
	tref := t0.Unix()

	sec := epoch + (tref-epoch)/secondsPerEra*secondsPerEra + int64(t.Seconds)

	// Pick the era that places the timestamp closest to the reference time
	if sec < tref-secondsPerEra/2 {
		sec += secondsPerEra
	} else if sec > tref+secondsPerEra/2 {
		sec -= secondsPerEra
	}

	nsec := (int64(t.Fraction)*nanosecondsPerSecond + 1<<31) >> 32

	return time.Unix(sec, nsec).UTC()
}

func (t Time64) IsZero() bool {
	return t.Seconds == 0 && t.Fraction == 0
}

func (t Time64) Before(u Time64) bool {
	return t.Seconds < u.Seconds ||
		t.Seconds == u.Seconds && t.Fraction < u.Fraction
}

func (t Time64) After(u Time64) bool {
	return t.Seconds > u.Seconds ||
		t.Seconds == u.Seconds && t.Fraction > u.Fraction
}

func (t Time32) Duration() time.Duration {
	return time.Duration(t.Seconds)*time.Second +
		time.Duration((int64(t.Fraction)*nanosecondsPerSecond)>>16)
}

// ClockOffset returns the offset of the server clock relative to the local
// clock given the local send time t1, the server receive time t2, the server
// transmit time t3, and the local receive time t4.
func ClockOffset(t1, t2, t3, t4 time.Time) time.Duration {
	return timemath.Midpoint(t2.Sub(t1), t3.Sub(t4))
}

func RoundTripDelay(t1, t2, t3, t4 time.Time) time.Duration {
	return t4.Sub(t1) - t3.Sub(t2)
}

func EncodePacket(b *[]byte, pkt *Packet) {
	if cap(*b) < PacketLen {
		*b = make([]byte, PacketLen)
	} else {
		*b = (*b)[:PacketLen]
	}

	buf := *b
	_ = buf[47]
	buf[0] = byte(pkt.LVM)
	buf[1] = byte(pkt.Stratum)
	buf[2] = byte(pkt.Poll)
	buf[3] = byte(pkt.Precision)
	binary.BigEndian.PutUint16(buf[4:], pkt.RootDelay.Seconds)
	binary.BigEndian.PutUint16(buf[6:], pkt.RootDelay.Fraction)
	binary.BigEndian.PutUint16(buf[8:], pkt.RootDispersion.Seconds)
	binary.BigEndian.PutUint16(buf[10:], pkt.RootDispersion.Fraction)
	binary.BigEndian.PutUint32(buf[12:], pkt.ReferenceID)
	binary.BigEndian.PutUint32(buf[16:], pkt.ReferenceTime.Seconds)
	binary.BigEndian.PutUint32(buf[20:], pkt.ReferenceTime.Fraction)
	binary.BigEndian.PutUint32(buf[24:], pkt.OriginTime.Seconds)
	binary.BigEndian.PutUint32(buf[28:], pkt.OriginTime.Fraction)
	binary.BigEndian.PutUint32(buf[32:], pkt.ReceiveTime.Seconds)
	binary.BigEndian.PutUint32(buf[36:], pkt.ReceiveTime.Fraction)
	binary.BigEndian.PutUint32(buf[40:], pkt.TransmitTime.Seconds)
	binary.BigEndian.PutUint32(buf[44:], pkt.TransmitTime.Fraction)
}

func DecodePacket(pkt *Packet, b []byte) error {
	if len(b) < PacketLen {
		return errUnexpectedPacketSize
	}

	_ = b[47]
	pkt.LVM = uint8(b[0])
	pkt.Stratum = uint8(b[1])
	pkt.Poll = int8(b[2])
	pkt.Precision = int8(b[3])
	pkt.RootDelay.Seconds = binary.BigEndian.Uint16(b[4:])
	pkt.RootDelay.Fraction = binary.BigEndian.Uint16(b[6:])
	pkt.RootDispersion.Seconds = binary.BigEndian.Uint16(b[8:])
	pkt.RootDispersion.Fraction = binary.BigEndian.Uint16(b[10:])
	pkt.ReferenceID = binary.BigEndian.Uint32(b[12:])
	pkt.ReferenceTime.Seconds = binary.BigEndian.Uint32(b[16:])
	pkt.ReferenceTime.Fraction = binary.BigEndian.Uint32(b[20:])
	pkt.OriginTime.Seconds = binary.BigEndian.Uint32(b[24:])
	pkt.OriginTime.Fraction = binary.BigEndian.Uint32(b[28:])
	pkt.ReceiveTime.Seconds = binary.BigEndian.Uint32(b[32:])
	pkt.ReceiveTime.Fraction = binary.BigEndian.Uint32(b[36:])
	pkt.TransmitTime.Seconds = binary.BigEndian.Uint32(b[40:])
	pkt.TransmitTime.Fraction = binary.BigEndian.Uint32(b[44:])

	return nil
}

func (p *Packet) LeapIndicator() uint8 {
	return (p.LVM >> 6) & 0b0000_0011
}

func (p *Packet) SetLeapIndicator(l uint8) {
	if l&0b0000_0011 != l {
		panic("unexpected NTP leap indicator value")
	}
	p.LVM = (p.LVM & 0b0011_1111) | (l << 6)
}

func (p *Packet) Version() uint8 {
	return (p.LVM >> 3) & 0b0000_0111
}

func (p *Packet) SetVersion(v uint8) {
	if v&0b0000_0111 != v {
		panic("unexpected NTP version value")
	}
	p.LVM = (p.LVM & 0b_1100_0111) | (v << 3)
}

func (p *Packet) Mode() uint8 {
	return p.LVM & 0b0000_0111
}

func (p *Packet) SetMode(m uint8) {
	if m&0b0000_0111 != m {
		panic("unexpected NTP mode value")
	}
	p.LVM = (p.LVM & 0b1111_1000) | m
}

// KissCode returns the four character kiss code of a kiss-o'-death packet.
func (p *Packet) KissCode() (string, bool) {
	if p.Stratum != 0 {
		return "", false
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], p.ReferenceID)
	return string(b[:]), true
}

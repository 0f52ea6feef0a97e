// Package ntstest provides an in-memory NTS server for tests.
package ntstest

import (
	"crypto/cipher"
	"time"

	"example.com/nts-client/net/ntp"
	"example.com/nts-client/net/nts"
	"example.com/nts-client/net/ntske"
)

// Responder answers NTS requests the way an NTS server would, with knobs to
// produce faulty responses.
type Responder struct {
	C2S, S2C cipher.AEAD

	// Now returns the server's receive and transmit times for a request.
	Now func() (rx, tx time.Time)

	// NumCookies is the number of fresh cookies to return. If negative, one
	// cookie is returned per cookie and placeholder in the request.
	NumCookies int
	// CookieLen is the size of the fresh cookies, 64 if zero.
	CookieLen int
	Stratum   uint8

	NAK         bool
	CorruptTag  bool
	ForeignUID  bool
	WrongOrigin bool

	// Requests holds every authenticated request seen so far.
	Requests []*nts.Packet

	next byte
}

func (r *Responder) cookie() ntske.Cookie {
	r.next++
	n := r.CookieLen
	if n == 0 {
		n = 64
	}
	c := make(ntske.Cookie, n)
	for i := range c {
		c[i] = r.next
	}
	return c
}

// Respond parses request b and returns the response datagram.
func (r *Responder) Respond(b []byte) ([]byte, error) {
	req, err := nts.DecodeRequest(b, r.C2S)
	if err != nil {
		return nil, err
	}
	r.Requests = append(r.Requests, req)

	rxTime, txTime := time.Now(), time.Now()
	if r.Now != nil {
		rxTime, txTime = r.Now()
	}

	uid := req.UniqueID
	if r.ForeignUID {
		uid = make([]byte, len(uid))
		copy(uid, req.UniqueID)
		uid[0] ^= 0xff
	}

	var resp nts.Packet
	resp.UniqueID = uid
	resp.Header.SetVersion(req.Header.Version())
	resp.Header.SetMode(ntp.ModeServer)
	resp.Header.Stratum = r.Stratum
	if resp.Header.Stratum == 0 {
		resp.Header.Stratum = 1
	}
	resp.Header.ReferenceID = 0x47505300 // "GPS\0"
	resp.Header.OriginTime = req.Header.TransmitTime
	if r.WrongOrigin {
		resp.Header.OriginTime.Fraction++
	}
	resp.Header.ReceiveTime = ntp.Time64FromTime(rxTime)
	resp.Header.TransmitTime = ntp.Time64FromTime(txTime)

	if r.NAK {
		resp.Header.SetLeapIndicator(ntp.LeapIndicatorUnknown)
		resp.Header.Stratum = 0
		resp.Header.ReferenceID = 0x4e54534e // "NTSN"
		resp.Header.ReceiveTime = ntp.Time64{}
		resp.Header.TransmitTime = ntp.Time64{}
	} else {
		n := r.NumCookies
		if n < 0 {
			n = len(req.Cookies) + len(req.CookiePlaceholders)
		}
		for range n {
			resp.EncryptedCookies = append(resp.EncryptedCookies, r.cookie())
		}
		resp.AEAD = r.S2C
	}

	var out []byte
	err = nts.EncodePacket(&out, &resp)
	if err != nil {
		return nil, err
	}
	if r.CorruptTag && resp.Auth != nil {
		out[resp.Auth.Pos+8+len(resp.Auth.Nonce)] ^= 0x01
	}
	return out, nil
}

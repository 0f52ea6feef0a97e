package nts

import (
	"bytes"
	"crypto/cipher"
	"errors"

	"example.com/nts-client/base/ntserr"
	"example.com/nts-client/net/ntp"
	"example.com/nts-client/net/ntske"
)

// ErrUnmatched reports a response that does not belong to the outstanding
// request. Such a response is dropped and the request remains pending.
var ErrUnmatched = errors.New("unmatched response")

var (
	errNAK            = errors.New("server rejected cookie (NTS NAK)")
	errUnexpectedMode = errors.New("unexpected NTP version or mode")
)

type Response struct {
	Header  ntp.Packet
	Cookies []ntske.Cookie
}

// Request is an outgoing NTS request. Cookie is sent in the clear, followed
// by Placeholders cookie placeholders of the same size.
type Request struct {
	Header       ntp.Packet
	UniqueID     []byte
	Cookie       ntske.Cookie
	Placeholders int
}

// EncodeRequest builds the sealed wire representation of req.
func EncodeRequest(b *[]byte, req *Request, c2s cipher.AEAD) error {
	if len(req.UniqueID) < UniqueIDLen {
		panic("unexpected unique identifier length")
	}
	pkt := Packet{
		Header:   req.Header,
		UniqueID: req.UniqueID,
		Cookies:  []ntske.Cookie{req.Cookie},
		AEAD:     c2s,
	}
	for range req.Placeholders {
		pkt.CookiePlaceholders = append(pkt.CookiePlaceholders, len(req.Cookie))
	}
	return EncodePacket(b, &pkt)
}

func protocolViolation(err error) error {
	return ntserr.New(ntserr.ErrProtocolViolation, "nts: decode response", err)
}

// DecodeResponse parses and authenticates a server response to the request
// identified by uid. A response that fails to authenticate yields
// AuthenticationFailed even if its unique identifier matches. A response
// carrying another unique identifier yields ErrUnmatched.
func DecodeResponse(b []byte, s2c cipher.AEAD, uid []byte) (Response, error) {
	pkt, err := DecodePacket(b)
	if err != nil {
		return Response{}, protocolViolation(err)
	}
	hdr := &pkt.Header
	if (hdr.Version() != 3 && hdr.Version() != 4) || hdr.Mode() != ntp.ModeServer {
		return Response{}, protocolViolation(errUnexpectedMode)
	}
	matched := pkt.UniqueID != nil && bytes.Equal(pkt.UniqueID, uid)

	// An NTS NAK is not authenticated, so only the identifier binds it to
	// the request.
	if code, ok := hdr.KissCode(); ok && code == ntp.KissCodeNTSNAK && pkt.Auth == nil {
		if !matched {
			return Response{}, ErrUnmatched
		}
		return Response{}, ntserr.New(ntserr.ErrAuthenticationFailed, "nts: decode response", errNAK)
	}

	if pkt.Auth == nil {
		if !matched {
			return Response{}, ErrUnmatched
		}
		return Response{}, protocolViolation(errMissingAuth)
	}
	err = pkt.Open(s2c)
	if err != nil {
		return Response{}, ntserr.New(ntserr.ErrAuthenticationFailed, "nts: decode response", err)
	}
	if pkt.UniqueID == nil {
		return Response{}, protocolViolation(errMissingUniqueID)
	}
	if !matched {
		return Response{}, ErrUnmatched
	}

	err = ntp.ValidateResponseMetadata(hdr)
	if err != nil {
		if errors.Is(err, ntp.ErrNTSNAK) {
			return Response{}, ntserr.New(ntserr.ErrAuthenticationFailed, "nts: decode response", errNAK)
		}
		return Response{}, protocolViolation(err)
	}

	return Response{Header: *hdr, Cookies: pkt.EncryptedCookies}, nil
}

// DecodeRequest parses and authenticates a client request. It is the server
// side counterpart of EncodeRequest.
func DecodeRequest(b []byte, c2s cipher.AEAD) (*Packet, error) {
	pkt, err := DecodePacket(b)
	if err != nil {
		return nil, err
	}
	if pkt.UniqueID == nil {
		return nil, errMissingUniqueID
	}
	err = pkt.Open(c2s)
	if err != nil {
		return nil, err
	}
	return pkt, nil
}

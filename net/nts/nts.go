/*
Copyright 2015-2017 Brett Vickers. All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions
are met:

   1. Redistributions of source code must retain the above copyright
      notice, this list of conditions and the following disclaimer.

   2. Redistributions in binary form must reproduce the above copyright
      notice, this list of conditions and the following disclaimer in the
      documentation and/or other materials provided with the distribution.

THIS SOFTWARE IS PROVIDED BY COPYRIGHT HOLDER ``AS IS'' AND ANY
EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR
PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL COPYRIGHT HOLDER OR
CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL,
EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO,
PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR
PROFITS; OR BUSINESS INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY
OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT
(INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.
*/

package nts

import (
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"golang.org/x/crypto/cryptobyte"

	"example.com/nts-client/base/crypto"
	"example.com/nts-client/net/ntp"
	"example.com/nts-client/net/ntske"
)

const (
	NumStoredCookies int = 8
	UniqueIDLen      int = 32
)

const (
	extUniqueIdentifier  uint16 = 0x104
	extCookie            uint16 = 0x204
	extCookiePlaceholder uint16 = 0x304
	extAuthenticator     uint16 = 0x404

	extHdrLen    = 4
	extMinLen    = 16
	authHdrLen   = 4
	maxExtLength = 1<<16 - 4
)

var LayerTypeNTS = gopacket.RegisterLayerType(
	1213,
	gopacket.LayerTypeMetadata{
		Name:    "NTS",
		Decoder: gopacket.DecodeFunc(decodeNTS),
	},
)

var (
	errUnexpectedPacketSize = errors.New("unexpected packet size")
	errMalformedExtension   = errors.New("malformed extension field")
	errMalformedAuth        = errors.New("malformed authenticator extension field")
	errDuplicateUniqueID    = errors.New("duplicate unique identifier extension field")
	errMissingAuth          = errors.New("packet does not contain an authenticator")
	errNonceLength          = errors.New("unexpected authenticator nonce length")
	errCipherTextLength     = errors.New("authenticator ciphertext shorter than tag")
	errMissingUniqueID      = errors.New("packet does not contain a unique identifier")
	errExtensionTooLong     = errors.New("extension field too long")
)

// BaseLayer is a convenience struct which implements the LayerData and
// LayerPayload functions of the Layer interface.
// Copy-pasted from gopacket/layers (we avoid importing this due its massive size)
type BaseLayer struct {
	// Contents is the set of bytes that make up this layer.
	Contents []byte
	// Payload is the set of bytes contained by (but not part of) this
	// Layer.
	Payload []byte
}

func (b *BaseLayer) LayerContents() []byte { return b.Contents }

func (b *BaseLayer) LayerPayload() []byte { return b.Payload }

// Authenticator is the NTS Authenticator and Encrypted Extension Fields
// extension field. Pos is the offset of the extension field in the packet;
// everything before it is authenticated as associated data.
type Authenticator struct {
	Pos        int
	Nonce      []byte
	CipherText []byte
}

// Packet is an NTP packet with NTS extension fields. When serialized with a
// non-nil AEAD, an authenticator is appended that seals EncryptedCookies.
// After decoding, EncryptedCookies is only populated by Open.
type Packet struct {
	BaseLayer
	Header ntp.Packet

	UniqueID           []byte
	Cookies            []ntske.Cookie
	CookiePlaceholders []int
	EncryptedCookies   []ntske.Cookie

	Auth          *Authenticator
	AEAD          cipher.AEAD
	Authenticated bool
}

func (p *Packet) LayerType() gopacket.LayerType {
	return LayerTypeNTS
}

func (p *Packet) CanDecode() gopacket.LayerClass {
	return LayerTypeNTS
}

func (p *Packet) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func (p *Packet) Payload() []byte {
	return nil
}

func decodeNTS(data []byte, p gopacket.PacketBuilder) error {
	d := &Packet{}
	err := d.DecodeFromBytes(data, p)
	if err != nil {
		return err
	}

	p.AddLayer(d)
	p.SetApplicationLayer(d)

	return nil
}

func addExtension(b *cryptobyte.Builder, t uint16, body []byte, bodyLen int) {
	// Round up to nearest word boundary
	n := (bodyLen + 3) &^ 3
	if extHdrLen+n < extMinLen {
		n = extMinLen - extHdrLen
	}
	if extHdrLen+n > maxExtLength {
		b.SetError(errExtensionTooLong)
		return
	}
	b.AddUint16(t)
	b.AddUint16(uint16(extHdrLen + n))
	b.AddBytes(body)
	b.AddBytes(make([]byte, n-len(body)))
}

func (p *Packet) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	var hdr []byte
	ntp.EncodePacket(&hdr, &p.Header)

	var eb cryptobyte.Builder
	eb.AddBytes(hdr)
	if p.UniqueID != nil {
		addExtension(&eb, extUniqueIdentifier, p.UniqueID, len(p.UniqueID))
	}
	for _, c := range p.Cookies {
		addExtension(&eb, extCookie, c, len(c))
	}
	for _, n := range p.CookiePlaceholders {
		addExtension(&eb, extCookiePlaceholder, nil, n)
	}
	if p.AEAD != nil {
		ad, err := eb.Bytes()
		if err != nil {
			return err
		}

		var pb cryptobyte.Builder
		for _, c := range p.EncryptedCookies {
			addExtension(&pb, extCookie, c, len(c))
		}
		plaintext, err := pb.Bytes()
		if err != nil {
			return err
		}

		nonce, err := crypto.RandBytes(p.AEAD.NonceSize())
		if err != nil {
			return err
		}
		ct := p.AEAD.Seal(nil, nonce, plaintext, ad)

		var ab cryptobyte.Builder
		ab.AddUint16(uint16(len(nonce)))
		ab.AddUint16(uint16(len(ct)))
		ab.AddBytes(nonce)
		ab.AddBytes(make([]byte, ((len(nonce)+3)&^3)-len(nonce)))
		ab.AddBytes(ct)
		ab.AddBytes(make([]byte, ((len(ct)+3)&^3)-len(ct)))
		auth, err := ab.Bytes()
		if err != nil {
			return err
		}
		p.Auth = &Authenticator{Pos: len(ad), Nonce: nonce, CipherText: ct}
		addExtension(&eb, extAuthenticator, auth, len(auth))
	}

	pkt, err := eb.Bytes()
	if err != nil {
		return err
	}
	data, err := b.PrependBytes(len(pkt))
	if err != nil {
		return err
	}
	copy(data, pkt)
	return nil
}

func parseAuthenticator(pos int, body []byte) (*Authenticator, error) {
	s := cryptobyte.String(body)
	var nonceLen, ctLen uint16
	if !s.ReadUint16(&nonceLen) || !s.ReadUint16(&ctLen) {
		return nil, errMalformedAuth
	}
	var nonce, ct []byte
	if !s.ReadBytes(&nonce, int(nonceLen)) ||
		!s.Skip(((int(nonceLen)+3)&^3)-int(nonceLen)) ||
		!s.ReadBytes(&ct, int(ctLen)) {
		return nil, errMalformedAuth
	}
	// siv-go expects the nonce and ciphertext in their own backing arrays
	return &Authenticator{
		Pos:        pos,
		Nonce:      bytes.Clone(nonce),
		CipherText: bytes.Clone(ct),
	}, nil
}

type extension struct {
	typ  uint16
	pos  int
	body []byte
}

func parseExtensions(b []byte, offset int, f func(ext extension) (bool, error)) error {
	pos := 0
	for pos < len(b) {
		if len(b)-pos < extHdrLen {
			return errMalformedExtension
		}
		t := binary.BigEndian.Uint16(b[pos:])
		l := int(binary.BigEndian.Uint16(b[pos+2:]))
		if l < extHdrLen || l%4 != 0 || l > len(b)-pos {
			return errMalformedExtension
		}
		done, err := f(extension{typ: t, pos: offset + pos, body: b[pos+extHdrLen : pos+l]})
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		pos += l
	}
	return nil
}

// DecodeFromBytes parses the NTP header and the extension fields up to and
// including the authenticator. Extension fields following the authenticator
// are not authenticated and therefore ignored.
func (p *Packet) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < ntp.PacketLen {
		df.SetTruncated()
		return errUnexpectedPacketSize
	}

	p.BaseLayer = BaseLayer{Contents: data}
	err := ntp.DecodePacket(&p.Header, data)
	if err != nil {
		return err
	}

	return parseExtensions(data[ntp.PacketLen:], ntp.PacketLen, func(ext extension) (bool, error) {
		switch ext.typ {
		case extUniqueIdentifier:
			if p.UniqueID != nil {
				return false, errDuplicateUniqueID
			}
			p.UniqueID = bytes.Clone(ext.body)
		case extCookie:
			p.Cookies = append(p.Cookies, bytes.Clone(ext.body))
		case extCookiePlaceholder:
			p.CookiePlaceholders = append(p.CookiePlaceholders, len(ext.body))
		case extAuthenticator:
			a, err := parseAuthenticator(ext.pos, ext.body)
			if err != nil {
				return false, err
			}
			p.Auth = a
			return true, nil
		}
		// Unknown extension fields are skipped
		return false, nil
	})
}

// Open authenticates the packet with aead and extracts the cookies carried
// in the encrypted extension fields.
func (p *Packet) Open(aead cipher.AEAD) error {
	if p.Auth == nil {
		return errMissingAuth
	}
	// siv-go and miscreant panic on a nonce of the wrong size
	if len(p.Auth.Nonce) != aead.NonceSize() {
		return errNonceLength
	}
	if len(p.Auth.CipherText) < aead.Overhead() {
		return errCipherTextLength
	}
	plaintext, err := aead.Open(nil, p.Auth.Nonce, p.Auth.CipherText, p.Contents[:p.Auth.Pos])
	if err != nil {
		return err
	}
	p.Authenticated = true

	return parseExtensions(plaintext, 0, func(ext extension) (bool, error) {
		if ext.typ == extCookie {
			p.EncryptedCookies = append(p.EncryptedCookies, bytes.Clone(ext.body))
		}
		return false, nil
	})
}

// NewUniqueID returns a fresh random unique identifier.
func NewUniqueID() ([]byte, error) {
	return crypto.RandBytes(UniqueIDLen)
}

// NumPlaceholders returns the number of cookie placeholders to add to a
// request so that the pool is refilled to target cookies, counting the cookie
// sent with the request. At least one replacement cookie is always requested
// since the server returns one cookie per cookie and placeholder.
func NumPlaceholders(poolLen, target int) int {
	return max(0, target-(poolLen+1))
}

// EncodePacket serializes pkt into b, reusing b's storage where possible.
func EncodePacket(b *[]byte, pkt *Packet) error {
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, pkt)
	if err != nil {
		return err
	}
	data := buf.Bytes()
	if cap(*b) < len(data) {
		*b = make([]byte, len(data))
	} else {
		*b = (*b)[:len(data)]
	}
	copy(*b, data)
	return nil
}

// DecodePacket parses b through the registered NTS layer decoder.
func DecodePacket(b []byte) (*Packet, error) {
	gp := gopacket.NewPacket(b, LayerTypeNTS, gopacket.DecodeOptions{
		NoCopy:             true,
		SkipDecodeRecovery: true,
	})
	if el := gp.ErrorLayer(); el != nil {
		return nil, el.Error()
	}
	l := gp.Layer(LayerTypeNTS)
	if l == nil {
		return nil, fmt.Errorf("no NTS layer in packet")
	}
	return l.(*Packet), nil
}

package ntske

import (
	"example.com/nts-client/base/ntserr"
)

// Cookie is an opaque NTS cookie issued by the server.
type Cookie []byte

// CookiePool holds the cookies available for outgoing requests in the order
// they were received. A CookiePool is owned by a single client and is not
// safe for concurrent use.
type CookiePool struct {
	cookies []Cookie
}

func NewCookiePool(cookies ...Cookie) *CookiePool {
	p := &CookiePool{}
	for _, c := range cookies {
		p.Put(c)
	}
	return p
}

// Take removes and returns the oldest cookie.
func (p *CookiePool) Take() (Cookie, error) {
	if len(p.cookies) == 0 {
		return nil, ntserr.New(ntserr.ErrCookiesExhausted, "ntske: take cookie", nil)
	}
	c := p.cookies[0]
	p.cookies[0] = nil
	p.cookies = p.cookies[1:]
	return c, nil
}

func (p *CookiePool) Put(c Cookie) {
	p.cookies = append(p.cookies, c)
}

// Requeue puts back a cookie that was taken but never sent so that it is
// used next.
func (p *CookiePool) Requeue(c Cookie) {
	p.cookies = append(p.cookies, nil)
	copy(p.cookies[1:], p.cookies)
	p.cookies[0] = c
}

func (p *CookiePool) Len() int {
	return len(p.cookies)
}

func (p *CookiePool) Sizes() []int {
	s := make([]int, len(p.cookies))
	for i, c := range p.cookies {
		s[i] = len(c)
	}
	return s
}

// Clear drops all cookies.
func (p *CookiePool) Clear() {
	clear(p.cookies)
	p.cookies = nil
}

func (p *CookiePool) snapshot() [][]byte {
	cs := make([][]byte, len(p.cookies))
	for i, c := range p.cookies {
		cs[i] = c
	}
	return cs
}

package ntske_test

import (
	"bytes"
	"errors"
	"testing"

	"example.com/nts-client/base/ntserr"
	"example.com/nts-client/net/ntske"
)

func TestCookiePoolFIFO(t *testing.T) {
	p := ntske.NewCookiePool(ntske.Cookie{1}, ntske.Cookie{2})
	p.Put(ntske.Cookie{3})
	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", p.Len())
	}
	for i := byte(1); i <= 3; i++ {
		c, err := p.Take()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(c, ntske.Cookie{i}) {
			t.Errorf("Take() = %x, want %x", c, i)
		}
		if p.Len() != 3-int(i) {
			t.Errorf("Len() = %d after take", p.Len())
		}
	}
	_, err := p.Take()
	if !errors.Is(err, ntserr.ErrCookiesExhausted) {
		t.Errorf("Take() on empty pool = %v", err)
	}
}

func TestCookiePoolTakeIsUnique(t *testing.T) {
	p := ntske.NewCookiePool()
	for i := 0; i != 8; i++ {
		p.Put(ntske.Cookie{byte(i), 0xee})
	}
	seen := map[string]bool{}
	for p.Len() != 0 {
		c, err := p.Take()
		if err != nil {
			t.Fatal(err)
		}
		if seen[string(c)] {
			t.Errorf("cookie %x returned twice", c)
		}
		seen[string(c)] = true
	}
}

func TestCookiePoolRequeue(t *testing.T) {
	p := ntske.NewCookiePool(ntske.Cookie{1}, ntske.Cookie{2})
	c, _ := p.Take()
	p.Requeue(c)
	c, _ = p.Take()
	if !bytes.Equal(c, ntske.Cookie{1}) {
		t.Errorf("requeued cookie must be used next, got %x", c)
	}
}

func TestCookiePoolSizesAndClear(t *testing.T) {
	p := ntske.NewCookiePool(make(ntske.Cookie, 100), make(ntske.Cookie, 104))
	s := p.Sizes()
	if len(s) != 2 || s[0] != 100 || s[1] != 104 {
		t.Errorf("Sizes() = %v", s)
	}
	p.Clear()
	if p.Len() != 0 {
		t.Errorf("Len() after Clear = %d", p.Len())
	}
}

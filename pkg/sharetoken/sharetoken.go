package sharetoken

import (
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/J-Pabon/ouisync/pkg/crypto"
	"github.com/J-Pabon/ouisync/pkg/errs"
)

const scheme = "ouisync"

// Token is the decoded form of a share link: the access mode it grants, the
// secrets backing that mode, and an optional suggested display name.
type Token struct {
	Mode          crypto.AccessMode
	Secrets       crypto.AccessSecrets
	SuggestedName string
}

// Encode renders t as a textual share token.
func Encode(t Token) string {
	u := url.URL{Scheme: scheme}
	values := url.Values{}

	switch t.Mode {
	case crypto.ModeWrite:
		u.Host = "write"
		if wk, ok := t.Secrets.WriteKey(); ok {
			values.Set("k", base64.RawURLEncoding.EncodeToString(wk.Seed()))
		}
	case crypto.ModeRead:
		u.Host = "read"
		if rk, ok := t.Secrets.ReadKey(); ok {
			values.Set("k", base64.RawURLEncoding.EncodeToString(rk[:]))
		}
	default:
		u.Host = "blind"
	}

	if t.SuggestedName != "" {
		values.Set("name", t.SuggestedName)
	}
	u.RawQuery = values.Encode()
	return u.String()
}

// Decode parses a textual share token produced by Encode.
func Decode(s string) (Token, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Token{}, fmt.Errorf("sharetoken: parse: %w", errs.Malformed)
	}
	if u.Scheme != scheme {
		return Token{}, fmt.Errorf("sharetoken: unrecognized scheme %q: %w", u.Scheme, errs.Malformed)
	}

	values := u.Query()
	name := values.Get("name")

	switch u.Host {
	case "write":
		seed, err := decodeKeyParam(values, crypto.WriteKeySeedSize)
		if err != nil {
			return Token{}, err
		}
		wk, err := crypto.WriteKeyFromSeed(seed)
		if err != nil {
			return Token{}, fmt.Errorf("sharetoken: %w", err)
		}
		return Token{Mode: crypto.ModeWrite, Secrets: crypto.NewWriteAccess(wk), SuggestedName: name}, nil

	case "read":
		raw, err := decodeKeyParam(values, 32)
		if err != nil {
			return Token{}, err
		}
		var rk [32]byte
		copy(rk[:], raw)
		return Token{Mode: crypto.ModeRead, Secrets: crypto.NewReadAccess(rk), SuggestedName: name}, nil

	case "blind":
		return Token{Mode: crypto.ModeBlind, Secrets: crypto.NewBlindAccess(), SuggestedName: name}, nil

	default:
		return Token{}, fmt.Errorf("sharetoken: unrecognized mode %q: %w", u.Host, errs.Malformed)
	}
}

func decodeKeyParam(values url.Values, wantLen int) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(values.Get("k"))
	if err != nil {
		return nil, fmt.Errorf("sharetoken: decode key: %w", errs.Malformed)
	}
	if len(raw) != wantLen {
		return nil, fmt.Errorf("sharetoken: key is %d bytes, want %d: %w", len(raw), wantLen, errs.Malformed)
	}
	return raw, nil
}

// Normalize round-trips a token through Decode then Encode, canonicalizing
// its query parameter order and any redundant formatting.
func Normalize(s string) (string, error) {
	t, err := Decode(s)
	if err != nil {
		return "", err
	}
	return Encode(t), nil
}

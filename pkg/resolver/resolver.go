// Package resolver turns magnet references into torrent metainfo bytes.
package resolver

import (
	"bytes"
	"context"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackpal/bencode-go"
)

var (
	// ErrTimeout is returned when no metainfo arrived before the resolve deadline.
	ErrTimeout = errors.New("resolver: timed out")
	// ErrClosed is returned by Resolve after Shutdown.
	ErrClosed = errors.New("resolver: shut down")
	// ErrInvalidReference marks magnet URIs without a usable BTIH info-hash.
	ErrInvalidReference = errors.New("resolver: invalid magnet reference")
)

// Resolver obtains metainfo for a magnet reference and keeps session state
// that survives restarts.
type Resolver interface {
	Resolve(ctx context.Context, reference string, timeout time.Duration) ([]byte, error)
	LoadState(blob []byte) error
	SaveState() ([]byte, error)
	Shutdown() error
}

const btihPrefix = "urn:btih:"

// InfoHash extracts the BTIH info-hash from a magnet URI as 40 upper-case hex
// characters. Both hex and base32 encodings are accepted.
func InfoHash(reference string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(reference))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if !strings.EqualFold(u.Scheme, "magnet") {
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidReference, u.Scheme)
	}

	for _, xt := range u.Query()["xt"] {
		if len(xt) < len(btihPrefix) || !strings.EqualFold(xt[:len(btihPrefix)], btihPrefix) {
			continue
		}
		raw := xt[len(btihPrefix):]
		switch len(raw) {
		case 40:
			if _, err := hex.DecodeString(raw); err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
			}
			return strings.ToUpper(raw), nil
		case 32:
			sum, err := base32.StdEncoding.DecodeString(strings.ToUpper(raw))
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
			}
			return strings.ToUpper(hex.EncodeToString(sum)), nil
		default:
			return "", fmt.Errorf("%w: info-hash length %d", ErrInvalidReference, len(raw))
		}
	}
	return "", fmt.Errorf("%w: no btih topic", ErrInvalidReference)
}

// DecodeName parses bencoded metainfo and returns info.name.
func DecodeName(data []byte) (string, error) {
	decoded, err := bencode.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode metainfo: %w", err)
	}
	root, ok := decoded.(map[string]interface{})
	if !ok {
		return "", errors.New("decode metainfo: top level is not a dictionary")
	}
	info, ok := root["info"].(map[string]interface{})
	if !ok {
		return "", errors.New("decode metainfo: missing info dictionary")
	}
	name, ok := info["name"].(string)
	if !ok || name == "" {
		return "", errors.New("decode metainfo: missing info.name")
	}
	return name, nil
}

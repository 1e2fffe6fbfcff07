// Package horosafe holds the checks wikiedit applies at its edges: the
// wiki and asset endpoints it calls must not point into the host's own
// network, page titles from callers must be ones MediaWiki would accept,
// and remote bodies are read with a cap.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"unicode"
)

// MaxTitleLen is MediaWiki's title limit in bytes.
const MaxTitleLen = 255

// titleForbidden are the characters MediaWiki refuses in page titles.
const titleForbidden = "#<>[]|{}"

var (
	ErrSSRF         = errors.New("horosafe: endpoint resolves to a private address")
	ErrUnsafeScheme = errors.New("horosafe: endpoint must be http or https")
	ErrInvalidTitle = errors.New("horosafe: invalid page title")
	ErrTooLarge     = errors.New("horosafe: response too large")
)

// ValidateURL accepts http(s) endpoints whose host is public. Host names
// are resolved; a name that does not resolve yet is accepted and left to
// fail at dial time.
func ValidateURL(rawURL string) error {
	host, err := endpointHost(rawURL)
	if err != nil {
		return err
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return checkAddr(ip)
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip, err := netip.ParseAddr(a); err == nil {
			if err := checkAddr(ip); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateURLAllowPrivate only checks the scheme and host, for wikis
// running on the local network.
func ValidateURLAllowPrivate(rawURL string) error {
	_, err := endpointHost(rawURL)
	return err
}

func endpointHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("horosafe: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", ErrUnsafeScheme
	}
	if u.Hostname() == "" {
		return "", errors.New("horosafe: endpoint has no host")
	}
	return u.Hostname(), nil
}

func checkAddr(ip netip.Addr) error {
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return ErrSSRF
	}
	return nil
}

// ValidateTitle rejects empty or overlong titles and titles carrying
// control characters or any of # < > [ ] | { }.
func ValidateTitle(title string) error {
	switch {
	case strings.TrimSpace(title) == "":
		return fmt.Errorf("%w: empty", ErrInvalidTitle)
	case len(title) > MaxTitleLen:
		return fmt.Errorf("%w: over %d bytes", ErrInvalidTitle, MaxTitleLen)
	}
	if i := strings.IndexFunc(title, func(r rune) bool {
		return unicode.IsControl(r) || strings.ContainsRune(titleForbidden, r)
	}); i >= 0 {
		return fmt.Errorf("%w: %q at byte %d", ErrInvalidTitle, title[i:i+1], i)
	}
	return nil
}

// LimitedReadAll reads r to the end, failing with ErrTooLarge once more
// than limit bytes arrive.
func LimitedReadAll(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, limit)
	}
	return data, nil
}

// Package contentref validates the content and metadata locators carried
// by artifacts: bare IPFS CIDs, ipfs:// URIs, or http(s) gateway URLs with
// an /ipfs/<cid> path.
package contentref

import (
	"net/url"
	"strings"

	"github.com/ipfs/go-cid"

	"github.com/ppalomo/hashink/pkg/domain"
)

// Validate reports whether ref is a well-formed content reference.
func Validate(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.ErrInvalidRef
	}
	switch {
	case strings.HasPrefix(ref, "ipfs://"):
		return decode(strings.TrimPrefix(ref, "ipfs://"))
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		u, err := url.Parse(ref)
		if err != nil {
			return domain.ErrInvalidRef.WithCause(err)
		}
		if i := strings.Index(u.Path, "/ipfs/"); i >= 0 {
			rest := u.Path[i+len("/ipfs/"):]
			if j := strings.IndexByte(rest, '/'); j >= 0 {
				rest = rest[:j]
			}
			return decode(rest)
		}
		// Non-IPFS gateway URLs are accepted as-is; content storage is
		// out of scope.
		return nil
	default:
		return decode(ref)
	}
}

func decode(s string) error {
	if _, err := cid.Decode(s); err != nil {
		return domain.ErrInvalidRef.WithCause(err)
	}
	return nil
}

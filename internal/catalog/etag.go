package catalog

// etag.go computes the opaque version tokens used by conditional catalog
// reads. Tokens are deterministic over the read parameters plus the
// per-scope catalog versions, so any committed write to a scope changes
// every token derived from that scope's version and leaves other scopes'
// tokens unchanged. Tokens are compared byte-for-byte only; clients must
// not parse them.

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// ETagInput is everything a read-endpoint token depends on.
type ETagInput struct {
	Namespace     string
	Locale        string // empty for all-locale reads
	Format        string // response encoding: flat, nested, tabular-long, tabular-wide
	GlobalVersion int64
	OrgID         string // empty for global-only reads
	OrgVersion    int64
	OverridesMode OverridesMode
}

// ComputeETag serializes the input into an opaque token.
func ComputeETag(in ETagInput) string {
	// 0x1f separators keep field boundaries unambiguous.
	parts := []string{
		in.Namespace,
		in.Locale,
		in.Format,
		fmt.Sprintf("g%d", in.GlobalVersion),
		in.OrgID,
		fmt.Sprintf("o%d", in.OrgVersion),
		string(in.OverridesMode),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}

// ETagMatches reports whether the client-supplied conditional token
// matches the freshly computed one. Weak validators and surrounding
// quotes from If-None-Match are tolerated.
func ETagMatches(clientToken, computed string) bool {
	t := strings.TrimSpace(clientToken)
	t = strings.TrimPrefix(t, "W/")
	t = strings.Trim(t, `"`)
	return t != "" && t == computed
}

package token

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/trackshift/platform/uplink/internal/resource"
)

const scheme = "Bearer "

var stripper = strings.NewReplacer("/", "", "+", "", "=", "")

// Generate derives the upload token for (kind, target). The same pair always
// yields the same token, so it doubles as the registry key of the service
// instance and as the Authorization header value the uploader must present.
func Generate(kind resource.Kind, target string) string {
	sum := sha256.Sum256([]byte(kind.String() + ":" + target))
	return scheme + stripper.Replace(base64.StdEncoding.EncodeToString(sum[:]))
}

// ID returns a short, log-safe identifier for a token.
func ID(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:6])
}

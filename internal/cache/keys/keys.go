// Package keys builds deterministic cache keys for extraction results.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "citygml:result"

// Result keys a processed document by namespace, the document bytes and a
// fingerprint of every setting that changes the output. Byte-identical
// uploads with identical settings share a key.
func Result(namespace string, document []byte, settings string) string {
	ns := sanitize(strings.TrimSpace(namespace))

	const maxNamespaceLen = 64
	if len(ns) > maxNamespaceLen {
		ns = ns[:maxNamespaceLen]
	}
	if ns == "" {
		ns = "default"
	}
	return fmt.Sprintf("%s:%s:d=%016x:s=%016x", prefix, ns, xxhash.Sum64(document), xxhash.Sum64String(settings))
}

// DocumentHash is the short content hash used in logs.
func DocumentHash(document []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(document))
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// ':' is the key separator, so it is replaced as well
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

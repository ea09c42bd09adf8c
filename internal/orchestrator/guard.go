package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ProtectedHash fingerprints the operator-owned fields of an item. Key order
// does not matter.
func ProtectedHash(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte(0)
		sb.WriteString(fields[k])
		sb.WriteByte(0)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

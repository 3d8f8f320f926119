// Package favorites keeps the user's pinned TV and radio stations in a
// small JSON file and overlays them onto the live providers as one virtual
// provider. A favorite is identified by (kind, provider, source); the
// display name travels with it so the list renders without network access.
package favorites

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/michaldziwisz/programista-core/internal/guide"
)

// ProviderID is the id of the virtual favorites provider.
const ProviderID = "favorites"

// Ref identifies one favorite. Only TV and radio sources can be pinned.
type Ref struct {
	Kind       guide.Kind
	ProviderID string
	SourceID   string
}

// Entry is a Ref plus the name shown in lists.
type Entry struct {
	Ref
	Name string
}

type wireRef struct {
	K string `json:"k"`
	P string `json:"p"`
	S string `json:"s"`
}

// EncodeSourceID packs a ref into the compact JSON carried as the virtual
// source id. The encoding is stable: fixed key order, no HTML escaping.
func EncodeSourceID(ref Ref) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding three strings cannot fail.
	_ = enc.Encode(wireRef{K: string(ref.Kind), P: ref.ProviderID, S: ref.SourceID})
	return strings.TrimSuffix(buf.String(), "\n")
}

// DecodeSourceID unpacks a virtual source id. Both the compact keys and the
// long-form keys written by early releases are accepted; anything malformed
// or of an unpinnable kind yields ok=false.
func DecodeSourceID(value string) (Ref, bool) {
	var w struct {
		K          string `json:"k"`
		Kind       string `json:"kind"`
		P          string `json:"p"`
		ProviderID string `json:"provider_id"`
		S          string `json:"s"`
		SourceID   string `json:"source_id"`
	}
	if err := json.Unmarshal([]byte(value), &w); err != nil {
		return Ref{}, false
	}

	kind := w.K
	if kind == "" {
		kind = w.Kind
	}
	if kind != string(guide.KindTV) && kind != string(guide.KindRadio) {
		return Ref{}, false
	}

	pid := w.P
	if pid == "" {
		pid = w.ProviderID
	}
	sid := w.S
	if sid == "" {
		sid = w.SourceID
	}
	pid = strings.TrimSpace(pid)
	sid = strings.TrimSpace(sid)
	if pid == "" || sid == "" {
		return Ref{}, false
	}

	return Ref{Kind: guide.Kind(kind), ProviderID: pid, SourceID: sid}, true
}

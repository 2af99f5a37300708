package upstream

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/YaganovValera/feed-bridge/pkg/mqttwire"
)

// Templates holds the decoded CONNECT templates and the optional depth
// SUBSCRIBE override. Templates can be replaced at runtime.
type Templates struct {
	mu        sync.RWMutex
	shared    []byte
	perKind   map[Kind][]byte
	subscribe []byte
	changed   chan struct{}
}

// NewTemplates decodes the templates configured in cfg. A value that is not
// valid base64, or a CONNECT template without a token span, is an error;
// a missing template only disables that kind.
func NewTemplates(cfg Config) (*Templates, error) {
	t := &Templates{perKind: make(map[Kind][]byte), changed: make(chan struct{})}
	shared, err := decodeTemplate("upstream.connect_template", cfg.ConnectTemplate)
	if err != nil {
		return nil, err
	}
	t.shared = shared
	for _, k := range Kinds() {
		raw, err := decodeTemplate(fmt.Sprintf("upstream.%s.connect_template", k), cfg.Endpoint(k).ConnectTemplate)
		if err != nil {
			return nil, err
		}
		if raw != nil {
			t.perKind[k] = raw
		}
	}
	if s := strings.TrimSpace(cfg.Depth.SubscribeOverride); s != "" {
		if t.subscribe, err = base64.StdEncoding.DecodeString(s); err != nil {
			return nil, fmt.Errorf("upstream.depth.subscribe_override: %w", err)
		}
	}
	return t, nil
}

func decodeTemplate(name, b64 string) ([]byte, error) {
	b64 = strings.TrimSpace(b64)
	if b64 == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := CheckTemplate(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return raw, nil
}

// CheckTemplate reports whether raw can be spliced.
func CheckTemplate(raw []byte) error {
	_, err := mqttwire.SpliceToken(raw, []byte("check"))
	return err
}

// Connect returns the template for kind, falling back to the shared one.
func (t *Templates) Connect(k Kind) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if raw, ok := t.perKind[k]; ok {
		return raw, true
	}
	return t.shared, t.shared != nil
}

// SubscribeOverride returns the raw depth SUBSCRIBE body, if configured.
func (t *Templates) SubscribeOverride() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.subscribe
}

// SetConnect replaces the template of kind, or the shared template when
// kind is nil. The template is checked before it is stored.
func (t *Templates) SetConnect(kind *Kind, raw []byte) error {
	if err := CheckTemplate(raw); err != nil {
		return err
	}
	raw = append([]byte(nil), raw...)
	t.mu.Lock()
	defer t.mu.Unlock()
	if kind == nil {
		t.shared = raw
	} else {
		t.perKind[*kind] = raw
	}
	close(t.changed)
	t.changed = make(chan struct{})
	return nil
}

// Changed returns a channel that is closed by the next SetConnect.
func (t *Templates) Changed() <-chan struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.changed
}

// Lengths reports the configured template sizes, for diagnostics.
func (t *Templates) Lengths() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := map[string]int{"shared": len(t.shared)}
	for k, raw := range t.perKind {
		out[k.String()] = len(raw)
	}
	return out
}

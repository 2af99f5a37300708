package main

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YaganovValera/feed-bridge/pkg/mqttwire"
)

func templateB64() string {
	tok := "eyJhbGc.eyJzdWI.sig1"
	body := []byte{0x00, 0x04, 'M', 'Q', 'T', 'T', 0x04, 0xC2, 0x00, 0x3C, 0x00, 0x01, 'c'}
	body = append(body, 0x00, byte(len(tok)))
	body = append(body, tok...)
	out := []byte{mqttwire.PreambleByte}
	out, _ = mqttwire.AppendVarLen(out, len(body))
	return base64.StdEncoding.EncodeToString(append(out, body...))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSplice(t *testing.T) {
	const tok = "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.c2ln"
	out, err := run(t, "splice", "--template", templateB64(), "--token", "Bearer "+tok)
	if err != nil {
		t.Fatalf("splice: %v", err)
	}
	pkt, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("output is not base64: %q", out)
	}
	if !bytes.Contains(pkt, []byte(tok)) {
		t.Errorf("packet does not carry the token: %x", pkt)
	}
	rl, n, err := mqttwire.DecodeVarLen(pkt, 0)
	if err != nil || rl != len(pkt)-n {
		t.Errorf("remaining length = %d (consumed %d), packet %d bytes", rl, n, len(pkt))
	}
}

func TestSplice_TemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connect.b64")
	if err := os.WriteFile(path, []byte(templateB64()+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "splice", "--template-file", path, "--token", "eyJa.eyJb.c2ln"); err != nil {
		t.Fatalf("splice: %v", err)
	}
}

func TestSplice_Errors(t *testing.T) {
	tests := [][]string{
		{"splice", "--token", "eyJa.eyJb.c2ln"},
		{"splice", "--template", templateB64()},
		{"splice", "--template", "%%%", "--token", "eyJa.eyJb.c2ln"},
		{"splice", "--template", base64.StdEncoding.EncodeToString([]byte{0x10, 0x01, 0x00}), "--token", "eyJa.eyJb.c2ln"},
	}
	for _, args := range tests {
		if _, err := run(t, args...); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "feed-bridge dev") {
		t.Errorf("version = %q", out)
	}
}

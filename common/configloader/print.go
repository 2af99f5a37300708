package configloader

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// Mask hides a secret value, keeping empty values visibly empty.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// PrintConfig writes v as indented JSON. Secrets must be masked first.
func PrintConfig(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("configloader: print: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

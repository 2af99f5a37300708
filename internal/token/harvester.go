package token

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotFound is returned by a Harvester that ran to completion without
// capturing a token.
var ErrNotFound = errors.New("token: not found")

// Harvester produces a fresh bearer token. Implementations must honour
// ctx and return ErrNotFound when nothing was captured.
type Harvester interface {
	Harvest(ctx context.Context) (string, error)
}

// HarvesterFunc adapts a function to Harvester.
type HarvesterFunc func(ctx context.Context) (string, error)

func (f HarvesterFunc) Harvest(ctx context.Context) (string, error) { return f(ctx) }

// FileHarvester reads the token from a file kept up to date by an operator
// or a sidecar. Only the first non-empty line is used.
type FileHarvester struct {
	Path string
}

func (h FileHarvester) Harvest(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(h.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("token: read %s: %w", h.Path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
			return line, nil
		}
	}
	return "", ErrNotFound
}

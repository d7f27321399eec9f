package main

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidServeMode = errors.New("invalid serve mode")

// ServeMode selects which half of the route table a process serves, so the
// dashboard pages and the API can run as separate deployments.
type ServeMode string

const (
	ServeModeMonolith ServeMode = "monolith"
	ServeModeWeb      ServeMode = "web"
	ServeModeAPI      ServeMode = "api"
)

func ParseServeMode(rawInput string) (ServeMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	if normalized == "" {
		return ServeModeMonolith, nil
	}

	mode := ServeMode(normalized)
	switch mode {
	case ServeModeMonolith, ServeModeWeb, ServeModeAPI:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidServeMode, rawInput)
	}
}

// servesFrontend covers the pages, the loader script and the widget form.
func (mode ServeMode) servesFrontend() bool {
	return mode == ServeModeMonolith || mode == ServeModeWeb
}

// servesBackend covers the public POST endpoints, auth actions and the admin API.
func (mode ServeMode) servesBackend() bool {
	return mode == ServeModeMonolith || mode == ServeModeAPI
}

// Package proxylist provides proxy candidate sources for the pool.
package proxylist

import (
	"context"

	"github.com/MrSnakeDoc/sleuth/internal/proxypool"
)

// Static returns a fixed list of endpoints.
type Static []string

// Fetch implements proxypool.Source.
func (s Static) Fetch(context.Context) ([]string, error) {
	out := make([]string, 0, len(s))
	for _, e := range s {
		if e = proxypool.NormalizeEndpoint(e); e != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ proxypool.Source = Static(nil)

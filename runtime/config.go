// Package runtime runs a dbviz job: it walks the archival hierarchy,
// converts eligible leaves, registers derived artifacts and aggregates the
// per-item report trees.
package runtime

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultFormats is the allow-list used when none is configured.
const DefaultFormats = "siard"

// Endpoint is a host and port pair.
type Endpoint struct {
	Host string
	Port string
}

// String returns host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, e.Port)
}

// Validate checks the host is set and the port is in 1..65535.
func (e Endpoint) Validate(name string) error {
	if strings.TrimSpace(e.Host) == "" {
		return fmt.Errorf("%s hostname is required", name)
	}
	p, err := strconv.Atoi(e.Port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("%s port %q out of range", name, e.Port)
	}
	return nil
}

// Config is read once per job.
type Config struct {
	// Search is the search engine the converter exports into.
	Search Endpoint
	// Coordination is the search engine's coordination service.
	Coordination Endpoint
	// ViewerOpen is where derived artifacts are opened.
	ViewerOpen Endpoint
	// ViewerDelete is where derived artifacts are deleted.
	ViewerDelete Endpoint
	// Formats is the lowercased extension allow-list.
	Formats []string
	// IgnoreNonMatching reports non-matching leaves as successes with an
	// informational note instead of failing them.
	IgnoreNonMatching bool
}

// DefaultConfig returns the local-development defaults.
func DefaultConfig() Config {
	return Config{
		Search:            Endpoint{Host: "127.0.0.1", Port: "8983"},
		Coordination:      Endpoint{Host: "127.0.0.1", Port: "9983"},
		ViewerOpen:        Endpoint{Host: "127.0.0.1", Port: "8080"},
		ViewerDelete:      Endpoint{Host: "127.0.0.1", Port: "8080"},
		Formats:           ParseFormats(DefaultFormats),
		IgnoreNonMatching: true,
	}
}

// Validate checks every endpoint and that at least one format is allowed.
func (c Config) Validate() error {
	return errors.Join(
		c.Search.Validate("search"),
		c.Coordination.Validate("coordination"),
		c.ViewerOpen.Validate("viewer open"),
		c.ViewerDelete.Validate("viewer delete"),
		validateFormats(c.Formats),
	)
}

func validateFormats(formats []string) error {
	if len(formats) == 0 {
		return errors.New("at least one format is required")
	}
	return nil
}

// ParseFormats splits a comma-separated allow-list, trimming whitespace
// and leading dots and lowercasing each entry. Empty entries and
// duplicates are dropped.
func ParseFormats(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimLeft(strings.TrimSpace(f), "."))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Package config loads dbviz.yaml.
package config

import (
	"os"
	"regexp"
)

// envRef matches ${VAR} and ${VAR:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv substitutes environment references in a config document.
// ${VAR:-fallback} uses fallback when VAR is unset or empty; a bare ${VAR}
// becomes "" and missing required values surface in Validate.
func ExpandEnv(doc string) string {
	return envRef.ReplaceAllStringFunc(doc, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[3]
	})
}

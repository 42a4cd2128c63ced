// Package template expands ${env:VAR} placeholders in configuration values.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envPattern matches ${env:VAR} placeholders.
var envPattern = regexp.MustCompile(`\$\{env:([^}]*)\}`)

// ExpandEnv replaces ${env:VAR} placeholders in text with the value of the
// environment variable. Missing variables are all reported, joined. Text
// without placeholders is returned unchanged.
func ExpandEnv(text string) (string, error) {
	return expand(text, os.LookupEnv)
}

func expand(text string, lookup func(string) (string, bool)) (string, error) {
	if !strings.Contains(text, "${env:") {
		return text, nil
	}

	var errs []error
	result := envPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if name == "" {
			errs = append(errs, errors.New("empty env var name"))
			return match
		}
		if val, ok := lookup(name); ok {
			return val
		}
		errs = append(errs, fmt.Errorf("env var %q not set", name))
		return match
	})

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return result, nil
}

// ExpandFields expands every field in place. Errors are prefixed with the
// field name and joined.
func ExpandFields(fields map[string]*string) error {
	var errs []error
	for name, ptr := range fields {
		if ptr == nil {
			continue
		}
		expanded, err := ExpandEnv(*ptr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*ptr = expanded
	}
	return errors.Join(errs...)
}

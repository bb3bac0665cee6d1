package stack

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// envKeyPattern validates environment variable key names.
// Keys must:
//   - Start with a letter or underscore
//   - Contain only alphanumeric characters and underscores
//   - Not be empty
//
// This follows POSIX naming conventions and prevents shell metacharacter
// injection attacks.
var envKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidEnvKey is returned when an environment variable key is invalid.
var ErrInvalidEnvKey = fmt.Errorf("invalid environment variable key")

// EnvVar represents a single environment variable.
//
// # Description
//
// A typed representation of an environment variable with validation
// and sensitivity marking for secure logging.
//
// # Example
//
//	ev := EnvVar{Key: "WALLET_MNEMONIC", Value: "abandon ability ...", Sensitive: true}
//	fmt.Println(ev.Redacted()) // WALLET_MNEMONIC=[REDACTED]
type EnvVar struct {
	// Key is the environment variable name.
	// Must match pattern: ^[a-zA-Z_][a-zA-Z0-9_]*$
	Key string

	// Value is the environment variable value.
	// May be empty string (valid in POSIX).
	Value string

	// Sensitive indicates this value should be redacted in logs.
	Sensitive bool
}

// String returns the KEY=VALUE format.
func (e EnvVar) String() string {
	return fmt.Sprintf("%s=%s", e.Key, e.Value)
}

// Redacted returns KEY=[REDACTED] for sensitive vars, otherwise String().
func (e EnvVar) Redacted() string {
	if e.Sensitive {
		return fmt.Sprintf("%s=[REDACTED]", e.Key)
	}
	return e.String()
}

// Validate checks if the key is valid.
func (e EnvVar) Validate() error {
	if !envKeyPattern.MatchString(e.Key) {
		return fmt.Errorf("%w: %q must match pattern [a-zA-Z_][a-zA-Z0-9_]*", ErrInvalidEnvKey, e.Key)
	}
	return nil
}

// EnvConfig is an ordered, validated collection of environment variables.
//
// # Description
//
// Type-safe container for the stack's .env configuration. Preserves
// insertion order so rendered .env files stay diffable, validates keys,
// and supports merging, redaction, and .env round-tripping.
//
// # Example
//
//	cfg, err := NewEnvConfig(
//	    EnvVar{Key: "KASPA_NETWORK", Value: "mainnet"},
//	    EnvVar{Key: "POSTGRES_PASSWORD", Value: "s3cret", Sensitive: true},
//	)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.RedactedSlice()) // Safe for logging
//
// # Thread Safety
//
// EnvConfig is NOT thread-safe. Do not modify concurrently.
type EnvConfig struct {
	vars []EnvVar
}

// NewEnvConfig creates a validated EnvConfig collection.
//
// # Inputs
//
//   - vars: Environment variables to include
//
// # Outputs
//
//   - *EnvConfig: Validated collection
//   - error: Non-nil if any key is invalid
//
// # Limitations
//
//   - Duplicate keys are allowed (last wins in Get/ToMap)
func NewEnvConfig(vars ...EnvVar) (*EnvConfig, error) {
	for _, v := range vars {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return &EnvConfig{vars: vars}, nil
}

// MustNewEnvConfig creates an EnvConfig or panics.
//
// Use only for compile-time constants where the keys are known valid.
func MustNewEnvConfig(vars ...EnvVar) *EnvConfig {
	cfg, err := NewEnvConfig(vars...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// EmptyEnvConfig returns an empty EnvConfig.
func EmptyEnvConfig() *EnvConfig {
	return &EnvConfig{vars: []EnvVar{}}
}

// Set adds or replaces an environment variable in place.
//
// # Description
//
// If the key already exists its value (and sensitivity) is updated
// without changing its position; otherwise the variable is appended.
// Sensitivity is also auto-detected from the key name.
//
// # Outputs
//
//   - error: Non-nil if key is invalid
func (e *EnvConfig) Set(key, value string) error {
	ev := EnvVar{Key: key, Value: value, Sensitive: isSensitiveEnvKey(key)}
	if err := ev.Validate(); err != nil {
		return err
	}

	for i, existing := range e.vars {
		if existing.Key == key {
			e.vars[i] = ev
			return nil
		}
	}
	e.vars = append(e.vars, ev)
	return nil
}

// MustSet sets a variable or panics.
func (e *EnvConfig) MustSet(key, value string) {
	if err := e.Set(key, value); err != nil {
		panic(err)
	}
}

// Remove deletes a key. Returns true if the key was present.
func (e *EnvConfig) Remove(key string) bool {
	for i, v := range e.vars {
		if v.Key == key {
			e.vars = append(e.vars[:i], e.vars[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the value for a key, or empty string if not found.
func (e *EnvConfig) Get(key string) string {
	if e == nil {
		return ""
	}
	for i := len(e.vars) - 1; i >= 0; i-- {
		if e.vars[i].Key == key {
			return e.vars[i].Value
		}
	}
	return ""
}

// Has returns true if the key exists.
func (e *EnvConfig) Has(key string) bool {
	if e == nil {
		return false
	}
	for _, v := range e.vars {
		if v.Key == key {
			return true
		}
	}
	return false
}

// Len returns the number of environment variables.
func (e *EnvConfig) Len() int {
	if e == nil {
		return 0
	}
	return len(e.vars)
}

// Keys returns all keys in insertion order.
func (e *EnvConfig) Keys() []string {
	if e == nil {
		return nil
	}
	keys := make([]string, len(e.vars))
	for i, v := range e.vars {
		keys[i] = v.Key
	}
	return keys
}

// ToSlice converts to []string format for exec.Cmd.Env.
func (e *EnvConfig) ToSlice() []string {
	if e == nil {
		return nil
	}
	result := make([]string, len(e.vars))
	for i, v := range e.vars {
		result[i] = v.String()
	}
	return result
}

// ToMap converts to map[string]string. Duplicate keys: last wins.
func (e *EnvConfig) ToMap() map[string]string {
	if e == nil {
		return nil
	}
	result := make(map[string]string, len(e.vars))
	for _, v := range e.vars {
		result[v.Key] = v.Value
	}
	return result
}

// RedactedSlice returns []string with sensitive values masked.
//
// # Example
//
//	log.Printf("applying env: %v", cfg.RedactedSlice())
func (e *EnvConfig) RedactedSlice() []string {
	if e == nil {
		return nil
	}
	result := make([]string, len(e.vars))
	for i, v := range e.vars {
		result[i] = v.Redacted()
	}
	return result
}

// Merge combines two configs, with other taking precedence.
//
// # Description
//
// Returns a new EnvConfig. Keys present in the receiver keep their
// position with values overridden by other where both define them;
// keys only in other are appended in other's order. Deterministic,
// unlike a map-based merge.
//
// # Example
//
//	current := MustNewEnvConfig(EnvVar{Key: "KASPA_NETWORK", Value: "mainnet"})
//	template := MustNewEnvConfig(EnvVar{Key: "KASPA_NETWORK", Value: "testnet"})
//	merged := current.Merge(template)
//	// merged.Get("KASPA_NETWORK") == "testnet"
func (e *EnvConfig) Merge(other *EnvConfig) *EnvConfig {
	if other == nil || other.Len() == 0 {
		return e.Clone()
	}
	if e == nil || len(e.vars) == 0 {
		return other.Clone()
	}

	overrides := make(map[string]EnvVar, len(other.vars))
	for _, v := range other.vars {
		overrides[v.Key] = v
	}

	result := &EnvConfig{vars: make([]EnvVar, 0, len(e.vars)+len(other.vars))}
	seen := make(map[string]bool, len(e.vars))
	for _, v := range e.vars {
		if seen[v.Key] {
			continue
		}
		seen[v.Key] = true
		if ov, ok := overrides[v.Key]; ok {
			result.vars = append(result.vars, ov)
		} else {
			result.vars = append(result.vars, v)
		}
	}
	for _, v := range other.vars {
		if !seen[v.Key] {
			seen[v.Key] = true
			result.vars = append(result.vars, v)
		}
	}
	return result
}

// Clone returns a deep copy.
func (e *EnvConfig) Clone() *EnvConfig {
	if e == nil {
		return EmptyEnvConfig()
	}
	result := &EnvConfig{vars: make([]EnvVar, len(e.vars))}
	copy(result.vars, e.vars)
	return result
}

// Render serializes the config to .env file content.
//
// # Description
//
// Emits one KEY=VALUE line per variable in insertion order, with a
// trailing newline. Values are written verbatim; callers quoting values
// with spaces must do so themselves.
func (e *EnvConfig) Render() string {
	if e == nil || len(e.vars) == 0 {
		return ""
	}
	var b strings.Builder
	for _, v := range e.vars {
		b.WriteString(v.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseEnvContent parses .env file content into an EnvConfig.
//
// # Description
//
// Accepts the informal .env dialect: one KEY=VALUE per line, blank
// lines and #-comments ignored, optional single or double quotes around
// values stripped, "export " prefixes tolerated. Lines without '=' are
// skipped.
//
// # Inputs
//
//   - content: Raw .env file content
//
// # Outputs
//
//   - *EnvConfig: Parsed collection in file order
//   - error: Non-nil if a key fails validation
func ParseEnvContent(content string) (*EnvConfig, error) {
	cfg := EmptyEnvConfig()

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = unquoteEnvValue(value)

		ev := EnvVar{Key: key, Value: value, Sensitive: isSensitiveEnvKey(key)}
		if err := ev.Validate(); err != nil {
			return nil, fmt.Errorf("line %q: %w", line, err)
		}
		cfg.vars = append(cfg.vars, ev)
	}

	return cfg, nil
}

// FromEnvMap creates an EnvConfig from a map, keys sorted for determinism.
//
// # Inputs
//
//   - m: Map of environment variables
//
// # Outputs
//
//   - *EnvConfig: Validated collection
//   - error: Non-nil if any key is invalid
func FromEnvMap(m map[string]string) (*EnvConfig, error) {
	if len(m) == 0 {
		return EmptyEnvConfig(), nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]EnvVar, 0, len(m))
	for _, k := range keys {
		vars = append(vars, EnvVar{
			Key:       k,
			Value:     m[k],
			Sensitive: isSensitiveEnvKey(k),
		})
	}

	return NewEnvConfig(vars...)
}

func unquoteEnvValue(value string) string {
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// isSensitiveEnvKey detects common sensitive key patterns.
// Mnemonic and seed cover wallet recovery phrases.
func isSensitiveEnvKey(key string) bool {
	upper := strings.ToUpper(key)
	return strings.Contains(upper, "TOKEN") ||
		strings.Contains(upper, "SECRET") ||
		strings.Contains(upper, "KEY") ||
		strings.Contains(upper, "PASSWORD") ||
		strings.Contains(upper, "CREDENTIAL") ||
		strings.Contains(upper, "MNEMONIC") ||
		strings.Contains(upper, "SEED") ||
		strings.Contains(upper, "AUTH")
}

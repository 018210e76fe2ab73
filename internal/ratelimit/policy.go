package ratelimit

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LimitConfig allows Max requests per Window.
type LimitConfig struct {
	Max    int64
	Window time.Duration
}

// Policy holds the limits of every bucket.
type Policy struct {
	Enabled bool
	Limits  map[Bucket]LimitConfig
}

// DefaultPolicy returns the built-in limits.
func DefaultPolicy() *Policy {
	return &Policy{
		Enabled: true,
		Limits: map[Bucket]LimitConfig{
			BucketShortenURL:    {Max: 5, Window: time.Minute},
			BucketShortenIP:     {Max: 10, Window: time.Minute},
			BucketRedirectAlias: {Max: 100, Window: 10 * time.Second},
			BucketRedirectIP:    {Max: 60, Window: time.Minute},
			BucketNotFoundIP:    {Max: 20, Window: time.Minute},
		},
	}
}

// Clone returns a deep copy of the policy.
func (p *Policy) Clone() *Policy {
	limits := make(map[Bucket]LimitConfig, len(p.Limits))
	for b, cfg := range p.Limits {
		limits[b] = cfg
	}

	return &Policy{Enabled: p.Enabled, Limits: limits}
}

// Validate rejects windows shorter than one second and negative limits.
func (p *Policy) Validate() error {
	for b, cfg := range p.Limits {
		if cfg.Window < time.Second {
			return fmt.Errorf("ratelimit: bucket %s: window must be at least 1s, got %s", b, cfg.Window)
		}

		if cfg.Max < 0 {
			return fmt.Errorf("ratelimit: bucket %s: limit must not be negative", b)
		}
	}

	return nil
}

type policyFile struct {
	Enabled *bool                      `yaml:"enabled"`
	Buckets map[string]bucketFileEntry `yaml:"buckets"`
}

type bucketFileEntry struct {
	Limit  *int64 `yaml:"limit"`
	Window *int64 `yaml:"window"`
}

// LoadPolicy decodes a YAML policy from r and applies it over base.
// Buckets and fields missing from the document keep their base values.
//
//	enabled: true
//	buckets:
//	  shorten-url: {limit: 5, window: 60}
//	  redirect-alias: {limit: 100, window: 10}
func LoadPolicy(r io.Reader, base *Policy) (*Policy, error) {
	var doc policyFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("ratelimit: decode policy: %w", err)
	}

	policy := base.Clone()

	if doc.Enabled != nil {
		policy.Enabled = *doc.Enabled
	}

	known := make(map[string]Bucket)
	for _, b := range Buckets() {
		known[string(b)] = b
	}

	for name, entry := range doc.Buckets {
		bucket, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("ratelimit: unknown bucket %q", name)
		}

		cfg := policy.Limits[bucket]
		if entry.Limit != nil {
			cfg.Max = *entry.Limit
		}

		if entry.Window != nil {
			cfg.Window = time.Duration(*entry.Window) * time.Second
		}

		policy.Limits[bucket] = cfg
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	return policy, nil
}

// LoadPolicyFile reads a YAML policy file and applies it over base.
func LoadPolicyFile(path string, base *Policy) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: open policy: %w", err)
	}
	defer f.Close()

	return LoadPolicy(f, base)
}

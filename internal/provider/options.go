package provider

import "time"

// Options configures a live provider variant. All fields except MinChunk
// and MaxChunk map onto config.ProviderConfig; the chunk bounds have no
// configuration key and fall back to 30 and 80.
type Options struct {
	APIKey         string
	Model          string
	MaxTokens      int
	MaxRetries     int
	RequestTimeout time.Duration
	PartialDelay   time.Duration
	MinChunk       int
	MaxChunk       int
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.MinChunk <= 0 {
		o.MinChunk = 30
	}
	if o.MaxChunk <= 0 {
		o.MaxChunk = 80
	}
	return o
}

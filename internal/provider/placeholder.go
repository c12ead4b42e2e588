package provider

import "context"

const placeholderNarrative = "I'm currently running without a configured model backend, so I can't generate a real response right now."

// PlaceholderProvider is the "placeholder" variant: used when the live
// provider is disabled. It returns a fixed narrative as both FullText and a
// single-chunk stream (spec §4.5).
type PlaceholderProvider struct {
	Narrative string
}

// NewPlaceholderProvider builds a placeholder provider. An empty narrative
// falls back to the default text.
func NewPlaceholderProvider(narrative string) *PlaceholderProvider {
	if narrative == "" {
		narrative = placeholderNarrative
	}
	return &PlaceholderProvider{Narrative: narrative}
}

func (p *PlaceholderProvider) Name() string { return "placeholder" }

func (p *PlaceholderProvider) GenerateResponse(ctx context.Context, req Request) (*ModelResponse, error) {
	return &ModelResponse{
		FullText:  p.Narrative,
		Chunks:    singleChunkStream(p.Narrative),
		ToolCalls: nil,
	}, nil
}

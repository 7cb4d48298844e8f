package llm

import "github.com/rs/zerolog/log"

// ModeMock selects MockClient instead of the real endpoint.
const ModeMock = "MOCK"

// NewFactory returns a Factory that constructs a new client on every call.
// Nothing is cached between calls, so a missing credential is reported per
// call as an InitializationError.
func NewFactory(opts Options, mode string) Factory {
	if mode == ModeMock {
		log.Warn().Msg("mock mode enabled, completions are canned")
		return func() (CompletionClient, error) {
			return NewMockClient(), nil
		}
	}
	return func() (CompletionClient, error) {
		c, err := NewClient(opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

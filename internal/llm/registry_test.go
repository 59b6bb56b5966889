package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestBuildRegistryGroupsByFamily(t *testing.T) {
	families := map[string][]string{
		"gemini": {"gemini-2.5-flash", "gemini-2.0-flash"},
		"groq":   {"llama-3.3-70b-versatile"},
		"openai": {"gpt-4o-mini"},
	}
	creds := map[string]bool{"gemini": true, "openai": true}

	got := BuildRegistry(creds, []string{"openai", "groq", "gemini"}, families)
	assert.Equal(t, []ProviderID{
		"openai/gpt-4o-mini",
		"gemini/gemini-2.5-flash",
		"gemini/gemini-2.0-flash",
	}, got)
	assert.Equal(t, "gemini", got[1].Family())
	assert.Equal(t, "gemini-2.5-flash", got[1].Model())
}

func TestBuildRegistryWithoutCredentialsIsEmpty(t *testing.T) {
	got := BuildRegistry(map[string]bool{}, []string{"gemini"}, map[string][]string{"gemini": {"x"}})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

type httpStatusErr int

func (e httpStatusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e httpStatusErr) StatusCode() int { return int(e) }

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{errors.New("Error 429 Too Many Requests"), ErrRateLimit},
		{errors.New("You exceeded your current Quota"), ErrRateLimit},
		{errors.New("RESOURCE_EXHAUSTED"), ErrRateLimit},
		{errors.New("read tcp: i/o timeout"), ErrTimeout},
		{errors.New("connection refused"), ErrTimeout},
		{errors.New("The model `llama3-70b` has been decommissioned"), ErrModelNotFound},
		{errors.New("invalid api key"), ErrOther},
		{genai.APIError{Code: 429, Message: "slow down"}, ErrRateLimit},
		{genai.APIError{Code: 404, Message: "no such model"}, ErrModelNotFound},
		{fmt.Errorf("wrapped: %w", httpStatusErr(504)), ErrTimeout},
		{fmt.Errorf("fake/x: %w", ErrNoBackend), ErrModelNotFound},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, ClassifyError(tc.err), tc.want, tc.err.Error())
	}
	assert.NoError(t, ClassifyError(nil))
}

func TestDetectTopicPriority(t *testing.T) {
	assert.Equal(t, TopicSentiment, DetectTopic("Valuation and SENTIMENT"))
	assert.Equal(t, TopicValuation, DetectTopic("run a valuation for the thesis"))
	assert.Equal(t, TopicThesis, DetectTopic("Write a Thesis"))
	assert.Equal(t, TopicGeneral, DetectTopic("hello"))
}

package llm

import (
	"strings"

	"github.com/cloudwego/eino/schema"
)

// Topic selects the canned answer served when no provider succeeds.
type Topic string

const (
	TopicGeneral   Topic = "general"
	TopicSentiment Topic = "sentiment"
	TopicValuation Topic = "valuation"
	TopicThesis    Topic = "thesis"
)

var fallbackTexts = map[Topic]string{
	TopicSentiment: "## Sentiment Analysis\n\n" +
		"Based on the available information, the sentiment appears to be neutral to slightly positive. " +
		"A comprehensive sentiment reading requires the full source content and an available language model.",
	TopicValuation: "## Valuation Analysis\n\n" +
		"Valuation analysis requires detailed financial data and market context. " +
		"No language model was reachable, so a complete valuation assessment cannot be provided.",
	TopicThesis: "## Investment Thesis\n\n" +
		"Investment thesis generation requires analysis of multiple data points. " +
		"No language model was reachable, so a complete investment thesis cannot be provided at this time.",
	TopicGeneral: "## Service Unavailable\n\n" +
		"The request could not be processed because every language model provider failed. " +
		"Please try again later.",
}

// FallbackText returns the canned answer for a topic.
func FallbackText(topic Topic) string {
	if text, ok := fallbackTexts[topic]; ok {
		return text
	}
	return fallbackTexts[TopicGeneral]
}

// DetectTopic picks a topic from free text. Matching is a case-insensitive
// substring test checked in the order sentiment, valuation, thesis.
func DetectTopic(text string) Topic {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "sentiment"):
		return TopicSentiment
	case strings.Contains(lower, "valuation"):
		return TopicValuation
	case strings.Contains(lower, "thesis"):
		return TopicThesis
	}
	return TopicGeneral
}

func lastContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] != nil {
			return msgs[i].Content
		}
	}
	return ""
}

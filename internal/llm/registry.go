package llm

import (
	"strings"
)

// ProviderID names one backend model as "<family>/<model>".
type ProviderID string

func NewProviderID(family, model string) ProviderID {
	return ProviderID(family + "/" + model)
}

func (p ProviderID) Family() string {
	family, _, _ := strings.Cut(string(p), "/")
	return family
}

func (p ProviderID) Model() string {
	_, model, ok := strings.Cut(string(p), "/")
	if !ok {
		return string(p)
	}
	return model
}

// BuildRegistry returns the ordered provider list for the families that have
// credentials. Families are visited in order and each contributes its models
// as a contiguous group. No credentials yields an empty list.
func BuildRegistry(creds map[string]bool, order []string, families map[string][]string) []ProviderID {
	registry := make([]ProviderID, 0)
	seen := make(map[string]bool, len(order))
	for _, family := range order {
		if seen[family] || !creds[family] {
			continue
		}
		seen[family] = true
		for _, model := range families[family] {
			if model = strings.TrimSpace(model); model != "" {
				registry = append(registry, NewProviderID(family, model))
			}
		}
	}
	return registry
}

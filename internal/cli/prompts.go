package cli

import (
	"errors"
	"strings"

	"github.com/AlecAivazis/survey/v2"
)

// PromptForCompany asks for a company name or ticker.
func PromptForCompany() (string, error) {
	var company string
	prompt := &survey.Input{
		Message: "Company name or ticker to analyze (e.g., Apple Inc., NVDA):",
		Help:    "Any name works; the research stage searches the web for it.",
	}

	err := survey.AskOne(prompt, &company, survey.WithValidator(func(val interface{}) error {
		str, _ := val.(string)
		str = strings.TrimSpace(str)
		if str == "" {
			return errors.New("company cannot be empty")
		}
		if len(str) > 100 {
			return errors.New("company name too long (max 100 characters)")
		}
		return nil
	}))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(company), nil
}

const (
	actionAnalyze   = "Analyze a company"
	actionScan      = "Scan the market"
	actionHistory   = "Show recent analyses"
	actionProviders = "Show LLM providers"
	actionExit      = "Exit"
)

// PromptForAction shows the interactive main menu.
func PromptForAction() (string, error) {
	var choice string
	prompt := &survey.Select{
		Message: "What would you like to do?",
		Options: []string{actionAnalyze, actionScan, actionHistory, actionProviders, actionExit},
		Default: actionAnalyze,
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", err
	}
	return choice, nil
}

// PromptForConfirmation asks a yes/no question.
func PromptForConfirmation(message string, defaultValue bool) (bool, error) {
	var confirmed bool
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	err := survey.AskOne(prompt, &confirmed)
	return confirmed, err
}

package market

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrTooFewObservations marks an extraction without a usable price series.
var ErrTooFewObservations = errors.New("fewer than two price observations")

// Extraction is what an extractor could read out of free text.
type Extraction struct {
	Symbol  string
	Name    string
	Sector  string
	Closes  []float64
	Volumes []float64
}

// Extractor turns an unstructured answer into a price series.
type Extractor interface {
	Extract(symbol, text string) (*Extraction, error)
}

// RegexExtractor reads the block the fetch prompts ask for:
//
//	name: Apple Inc.
//	sector: Technology
//	prices: [189.1, 190.4, 192.0]
//	volumes: [51000000, 48000000, 53000000]
type RegexExtractor struct{}

var (
	pricesPattern  = regexp.MustCompile(`(?i)(?:prices|closes|closing prices)\s*[:=]\s*\[([^\]]*)\]`)
	volumesPattern = regexp.MustCompile(`(?i)volumes?\s*[:=]\s*\[([^\]]*)\]`)
	namePattern    = regexp.MustCompile(`(?im)^\s*(?:company\s+)?name\s*[:=]\s*(.+?)\s*$`)
	sectorPattern  = regexp.MustCompile(`(?im)^\s*sector\s*[:=]\s*(.+?)\s*$`)
)

func (RegexExtractor) Extract(symbol, text string) (*Extraction, error) {
	ex := &Extraction{Symbol: symbol}

	m := pricesPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("%s: no price series in text: %w", symbol, ErrTooFewObservations)
	}
	closes, err := parseNumbers(m[1])
	if err != nil {
		return nil, fmt.Errorf("%s: prices: %w", symbol, err)
	}
	ex.Closes = closes

	if m := volumesPattern.FindStringSubmatch(text); m != nil {
		if volumes, err := parseNumbers(m[1]); err == nil && len(volumes) == len(closes) {
			ex.Volumes = volumes
		}
	}
	if m := namePattern.FindStringSubmatch(text); m != nil {
		ex.Name = strings.Trim(m[1], `"'`)
	}
	if m := sectorPattern.FindStringSubmatch(text); m != nil {
		ex.Sector = strings.Trim(m[1], `"'`)
	}
	return ex, Validate(ex)
}

// Validate rejects extractions with fewer than two positive closes.
func Validate(ex *Extraction) error {
	if ex == nil || len(ex.Closes) < 2 {
		return ErrTooFewObservations
	}
	for _, c := range ex.Closes {
		if c <= 0 {
			return fmt.Errorf("non-positive close %v", c)
		}
	}
	return nil
}

func parseNumbers(list string) ([]float64, error) {
	var out []float64
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		field = strings.Trim(field, `$"'`)
		field = strings.ReplaceAll(field, "_", "")
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", field, err)
		}
		out = append(out, v)
	}
	return out, nil
}

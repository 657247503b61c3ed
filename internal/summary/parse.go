package summary

import (
	"encoding/json"
	"strings"
)

const missingOverview = "No summary could be generated."

// Parse extracts the outermost JSON object from raw, the text between the
// first '{' and the last '}'. Missing or malformed JSON yields a Degraded
// outcome carrying raw as the overview.
func Parse(raw string, level DetailLevel) Outcome {
	block, ok := jsonBlock(raw)
	if !ok {
		return degraded(raw, level)
	}
	var parsed Summary
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		return degraded(raw, level)
	}
	return Outcome{Kind: KindOK, Level: level, Summary: normalize(parsed, level), Raw: raw}
}

func jsonBlock(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func degraded(raw string, level DetailLevel) Outcome {
	return Outcome{
		Kind:  KindDegraded,
		Level: level,
		Summary: Summary{
			Overview:        raw,
			MainServices:    []string{},
			TargetCustomers: []string{},
			UniqueFeatures:  []string{},
		},
		Raw: raw,
	}
}

// normalize fills defaults and drops sections the level does not ask for.
func normalize(s Summary, level DetailLevel) Summary {
	if strings.TrimSpace(s.Overview) == "" {
		s.Overview = missingOverview
	}
	s.MainServices = orEmpty(s.MainServices)
	s.TargetCustomers = orEmpty(s.TargetCustomers)
	s.UniqueFeatures = orEmpty(s.UniqueFeatures)
	if level == LevelBasic {
		s.SWOT = nil
	} else if s.SWOT != nil {
		s.SWOT.Strengths = orEmpty(s.SWOT.Strengths)
		s.SWOT.Weaknesses = orEmpty(s.SWOT.Weaknesses)
		s.SWOT.Opportunities = orEmpty(s.SWOT.Opportunities)
		s.SWOT.Threats = orEmpty(s.SWOT.Threats)
	}
	if level != LevelComprehensive {
		s.CompetitorAnalysis = ""
	}
	return s
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

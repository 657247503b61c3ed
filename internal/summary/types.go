package summary

import (
	"fmt"
	"strings"
)

// DetailLevel selects the shape and verbosity of a summary.
type DetailLevel string

const (
	LevelBasic         DetailLevel = "basic"
	LevelDetailed      DetailLevel = "detailed"
	LevelComprehensive DetailLevel = "comprehensive"
)

// ParseDetailLevel maps raw onto a DetailLevel. Empty input yields LevelBasic.
func ParseDetailLevel(raw string) (DetailLevel, error) {
	switch level := DetailLevel(strings.ToLower(strings.TrimSpace(raw))); level {
	case "":
		return LevelBasic, nil
	case LevelBasic, LevelDetailed, LevelComprehensive:
		return level, nil
	default:
		return "", fmt.Errorf("unknown detail level %q", raw)
	}
}

// Summary is the structured result. SWOT is present from LevelDetailed up and
// CompetitorAnalysis only at LevelComprehensive.
type Summary struct {
	CompanyName        string        `json:"companyName,omitempty"`
	Overview           string        `json:"overview"`
	MainServices       []string      `json:"mainServices"`
	TargetCustomers    []string      `json:"targetCustomers"`
	UniqueFeatures     []string      `json:"uniqueFeatures"`
	SWOT               *SWOTAnalysis `json:"swotAnalysis,omitempty"`
	CompetitorAnalysis string        `json:"competitorAnalysis,omitempty"`
}

// SWOTAnalysis lists strengths, weaknesses, opportunities and threats.
type SWOTAnalysis struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

// Kind tags an Outcome.
type Kind string

const (
	// KindOK means the reply held a usable JSON object.
	KindOK Kind = "ok"
	// KindDegraded means the reply was kept verbatim as the overview.
	KindDegraded Kind = "degraded"
)

// Outcome is the tagged result of parsing a model reply. Callers must handle
// both kinds; a Degraded outcome is still a valid summary.
type Outcome struct {
	Kind    Kind        `json:"kind"`
	Level   DetailLevel `json:"level"`
	Summary Summary     `json:"summary"`
	Raw     string      `json:"-"`
}

// Degraded reports whether the reply could not be parsed.
func (o Outcome) Degraded() bool {
	return o.Kind == KindDegraded
}

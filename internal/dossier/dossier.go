// Package dossier builds read-only view models from session snapshots.
// Every builder is a pure function of its snapshot; calling one twice on
// the same snapshot yields identical views.
package dossier

import (
	"strconv"
	"strings"

	"github.com/pharmaverse/dashboard/internal/domain"
)

const (
	maxUnmetNeeds     = 4
	minSentenceLength = 20
	defaultCAGR       = "8.5%"
)

// Opportunity is one innovation opportunity card.
type Opportunity struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Feasibility string `json:"feasibility"`
	Impact      string `json:"impact"`
}

// PatientStats summarizes the addressable population.
type PatientStats struct {
	USPatients     string `json:"us_patients"`
	GlobalPatients string `json:"global_patients"`
	MarketCAGR     string `json:"market_cagr"`
}

// View is the molecule dossier rendered by the dashboard.
type View struct {
	Molecule      domain.CaseDescriptor `json:"molecule"`
	UnmetNeeds    []string              `json:"unmet_needs"`
	Trials        []domain.TrialEntry   `json:"trials"`
	Patents       []domain.PatentEntry  `json:"patents"`
	Opportunities []Opportunity         `json:"innovation_opportunities"`
	PatientStats  PatientStats          `json:"patient_stats"`
}

// Build assembles the dossier from a snapshot. Unmet needs are lifted
// from agent summaries in display order so repeated builds agree on
// ordering.
func Build(snap domain.Snapshot) View {
	v := View{
		Molecule:      snap.Case,
		UnmetNeeds:    unmetNeeds(snap),
		Opportunities: opportunities(),
		PatientStats: PatientStats{
			USPatients:     "12.5M",
			GlobalPatients: "45M",
			MarketCAGR:     marketCAGR(snap),
		},
	}

	if env, ok := snap.Results[domain.AgentTrials]; ok {
		if trials, ok := env.Data.(domain.TrialsPayload); ok {
			v.Trials = trials.ActiveTrials
		}
	}
	if env, ok := snap.Results[domain.AgentPatents]; ok {
		if patents, ok := env.Data.(domain.PatentPayload); ok {
			v.Patents = patents.Patents
		}
	}

	return v
}

// unmetNeeds extracts the leading sentences of each agent summary,
// skipping fragments too short to stand alone.
func unmetNeeds(snap domain.Snapshot) []string {
	var needs []string
	for _, id := range domain.AllAgents() {
		env, ok := snap.Results[id]
		if !ok || env.Summary == "" {
			continue
		}
		sentences := strings.Split(env.Summary, ".")
		if len(sentences) > 2 {
			sentences = sentences[:2]
		}
		for _, sent := range sentences {
			sent = strings.TrimSpace(sent)
			if len(sent) > minSentenceLength {
				needs = append(needs, sent+".")
			}
			if len(needs) == maxUnmetNeeds {
				return needs
			}
		}
	}
	return needs
}

// marketCAGR reads the growth rate of the lead market from the IQVIA
// result, falling back to the reference figure when no market data is
// available.
func marketCAGR(snap domain.Snapshot) string {
	env, ok := snap.Results[domain.AgentIQVIA]
	if !ok {
		return defaultCAGR
	}
	market, ok := env.Data.(domain.MarketPayload)
	if !ok || len(market.Markets) == 0 {
		return defaultCAGR
	}
	return strconv.FormatFloat(market.Markets[0].CAGR5Y, 'f', -1, 64) + "%"
}

func opportunities() []Opportunity {
	return []Opportunity{
		{
			Title:       "Extended-Release Formulation",
			Description: "Develop once-daily or once-weekly formulation to improve patient compliance",
			Feasibility: "High",
			Impact:      "High",
		},
		{
			Title:       "Fixed-Dose Combination",
			Description: "Combine with complementary mechanism of action for enhanced efficacy",
			Feasibility: "Medium",
			Impact:      "High",
		},
		{
			Title:       "Pediatric Formulation",
			Description: "Develop age-appropriate formulation for pediatric patients",
			Feasibility: "High",
			Impact:      "Medium",
		},
		{
			Title:       "Indication Expansion",
			Description: "Explore efficacy in related disease areas based on mechanism of action",
			Feasibility: "Medium",
			Impact:      "Very High",
		},
	}
}

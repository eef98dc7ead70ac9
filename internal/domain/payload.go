package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the decoded, agent-specific body of a result envelope. Each
// agent identifier has its own variant so view code can switch on the
// concrete type instead of null-checking an opaque blob.
type Payload interface {
	agentPayload()
}

// MarketEntry is one row of IQVIA market data.
type MarketEntry struct {
	Country       string  `json:"country"`
	Sales2024MUSD float64 `json:"sales_2024_musd"`
	CAGR5Y        float64 `json:"cagr_5y"`
}

// CompetitionSummary describes the competitive landscape for a therapy area.
type CompetitionSummary struct {
	TopCompetitors  []string `json:"top_competitors,omitempty"`
	TherapyDynamics string   `json:"therapy_dynamics,omitempty"`
}

// MarketPayload is the IQVIA market-data response.
type MarketPayload struct {
	Molecule           string              `json:"molecule"`
	TherapyArea        string              `json:"therapy_area,omitempty"`
	Markets            []MarketEntry       `json:"markets"`
	UnmetNeedFlag      bool                `json:"unmet_need_flag,omitempty"`
	CompetitionSummary *CompetitionSummary `json:"competition_summary,omitempty"`
}

// TradeEntry is one row of EXIM trade data.
type TradeEntry struct {
	Country       string  `json:"country"`
	ExportsTonnes float64 `json:"exports_tonnes"`
	ImportsTonnes float64 `json:"imports_tonnes"`
	NetPosition   string  `json:"net_position"`
	ValueMUSD     float64 `json:"value_musd,omitempty"`
}

// TradePayload is the EXIM export-import response.
type TradePayload struct {
	Product          string       `json:"product"`
	Year             int          `json:"year"`
	Rows             []TradeEntry `json:"trade_data"`
	SourcingInsights string       `json:"sourcing_insights,omitempty"`
	Trend            string       `json:"trend,omitempty"`
}

// PatentEntry is one patent in the landscape.
type PatentEntry struct {
	PatentNumber string `json:"patent_number"`
	Holder       string `json:"holder"`
	ExpiryDate   string `json:"expiry_date"`
	Status       string `json:"status"`
	Title        string `json:"title,omitempty"`
}

// PatentPayload is the patent-search response. FTOFlag is the
// freedom-to-operate classification.
type PatentPayload struct {
	FTOFlag              string        `json:"fto_flag"`
	Patents              []PatentEntry `json:"patent_status"`
	CompetitiveLandscape string        `json:"competitive_landscape,omitempty"`
	GenericOpportunity   string        `json:"generic_opportunity,omitempty"`
}

// TrialEntry is one clinical trial.
type TrialEntry struct {
	Title               string `json:"title"`
	Phase               string `json:"phase"`
	Indication          string `json:"indication"`
	Sponsor             string `json:"sponsor"`
	Status              string `json:"status"`
	NCTID               string `json:"nct_id,omitempty"`
	Enrollment          int    `json:"enrollment,omitempty"`
	EstimatedCompletion string `json:"estimated_completion,omitempty"`
}

// TrialsPayload is the clinical-trials response.
type TrialsPayload struct {
	TotalTrials       int            `json:"total_trials"`
	ActiveTrials      []TrialEntry   `json:"active_trials"`
	PhaseDistribution map[string]int `json:"phase_distribution,omitempty"`
}

// WebIntelPayload is the web-intelligence response.
type WebIntelPayload struct {
	ResultsCount int `json:"results_count"`
}

// ReportPayload describes a generated report artifact.
type ReportPayload struct {
	ReportID     string `json:"report_id"`
	DownloadLink string `json:"download_link,omitempty"`
}

// GenericPayload carries responses without a fixed schema, such as the
// internal knowledge base.
type GenericPayload struct {
	Fields map[string]any `json:"-"`
}

func (MarketPayload) agentPayload()   {}
func (TradePayload) agentPayload()    {}
func (PatentPayload) agentPayload()   {}
func (TrialsPayload) agentPayload()   {}
func (WebIntelPayload) agentPayload() {}
func (ReportPayload) agentPayload()   {}
func (GenericPayload) agentPayload()  {}

// DecodePayload decodes a raw agent response body into the typed variant
// for the given identifier.
func DecodePayload(id AgentID, raw json.RawMessage) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch id {
	case AgentIQVIA:
		var v MarketPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case AgentEXIM:
		var v TradePayload
		err = json.Unmarshal(raw, &v)
		p = v
	case AgentPatents:
		var v PatentPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case AgentTrials:
		var v TrialsPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case AgentWeb:
		var v WebIntelPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case AgentReport:
		var v ReportPayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		var fields map[string]any
		err = json.Unmarshal(raw, &fields)
		p = GenericPayload{Fields: fields}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", id, err)
	}
	return p, nil
}

// ResultEnvelope is the normalized wrapper around one agent response.
// Raw is the full decoded body; Data is the typed variant. At most one
// envelope is retained per agent identifier (last-write-wins).
type ResultEnvelope struct {
	AgentID    AgentID         `json:"agent_id"`
	Summary    string          `json:"summary"`
	Raw        json.RawMessage `json:"raw"`
	Data       Payload         `json:"-"`
	ReceivedAt time.Time       `json:"received_at"`
}

// WorkerResult is one per-agent sub-result inside a master dispatch
// response; Agent carries the backend's own name for the worker.
type WorkerResult struct {
	Agent   string          `json:"agent"`
	Summary string          `json:"summary"`
	Raw     json.RawMessage `json:"raw"`
}

// MasterRunResponse is the payload of a single master dispatch.
type MasterRunResponse struct {
	FinalAnswer   string         `json:"final_answer"`
	WorkerResults []WorkerResult `json:"worker_results"`
	Report        *ReportPayload `json:"report,omitempty"`
}

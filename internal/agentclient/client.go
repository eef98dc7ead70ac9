// Package agentclient issues the outbound HTTP calls to the worker-agent
// backends and the master agent, normalizing responses into result
// envelopes.
package agentclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pharmaverse/dashboard/internal/domain"
)

// ErrAgentUnavailable covers every way a single agent call can fail:
// network error, timeout, non-2xx status, or a malformed JSON body. The
// caller only needs to know the agent produced nothing usable; there is
// no retry.
var ErrAgentUnavailable = errors.New("agent unavailable")

// fallbackSummaries is used when a worker response carries no summary
// field of its own.
var fallbackSummaries = map[domain.AgentID]string{
	domain.AgentIQVIA:    "Market analysis complete.",
	domain.AgentEXIM:     "Trade analysis complete.",
	domain.AgentPatents:  "Patent landscape mapped.",
	domain.AgentTrials:   "Clinical trials analyzed.",
	domain.AgentInternal: "Internal knowledge retrieved.",
	domain.AgentWeb:      "Web intelligence gathered.",
	domain.AgentReport:   "Report generated.",
}

// Client calls the worker API and the master agent. It holds no state
// beyond configuration and is safe for concurrent use.
type Client struct {
	workerBase string
	masterBase string
	http       *http.Client
}

// New creates a client. Each call is bounded by timeout; expiry is
// treated the same as any network failure.
func New(workerBase, masterBase string, timeout time.Duration) *Client {
	return &Client{
		workerBase: strings.TrimRight(workerBase, "/"),
		masterBase: strings.TrimRight(masterBase, "/"),
		http:       &http.Client{Timeout: timeout},
	}
}

// Fetch performs the single worker call for one agent, using only the
// case fields that agent consumes, and wraps the response in an
// envelope. It touches no shared state; the orchestrator does the status
// bookkeeping.
func (c *Client) Fetch(ctx context.Context, id domain.AgentID, cs domain.CaseDescriptor) (*domain.ResultEnvelope, error) {
	endpoint, query, err := c.workerRequest(id, cs)
	if err != nil {
		return nil, err
	}

	raw, err := c.getJSON(ctx, endpoint, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAgentUnavailable, id, err)
	}

	return newEnvelope(id, raw)
}

// workerRequest maps an agent identifier to its endpoint and query
// parameters.
func (c *Client) workerRequest(id domain.AgentID, cs domain.CaseDescriptor) (string, url.Values, error) {
	q := url.Values{}
	switch id {
	case domain.AgentIQVIA:
		q.Set("molecule", cs.MoleculeName)
		return c.workerBase + "/api/iqvia", q, nil
	case domain.AgentEXIM:
		// The trade backend indexes by product name, which for an API
		// molecule is "<molecule> API".
		q.Set("product", cs.MoleculeName+" API")
		return c.workerBase + "/api/exim", q, nil
	case domain.AgentPatents:
		q.Set("molecule", cs.MoleculeName)
		if cs.Indication != "" {
			q.Set("indication", cs.Indication)
		}
		return c.workerBase + "/api/patents", q, nil
	case domain.AgentTrials:
		q.Set("molecule", cs.MoleculeName)
		if cs.Indication != "" {
			q.Set("indication", cs.Indication)
		}
		return c.workerBase + "/api/clinical-trials", q, nil
	case domain.AgentInternal:
		q.Set("topic", cs.MoleculeName+" strategy")
		return c.workerBase + "/api/internal-knowledge", q, nil
	case domain.AgentWeb:
		q.Set("query", strings.TrimSpace(cs.MoleculeName+" "+cs.Indication+" clinical guidelines"))
		return c.workerBase + "/api/web-intelligence", q, nil
	default:
		return "", nil, fmt.Errorf("%w: %s has no worker endpoint", ErrAgentUnavailable, id)
	}
}

// RunMaster performs a single master dispatch carrying the user's query.
// The master fans out server-side and returns every worker result in one
// payload.
func (c *Client) RunMaster(ctx context.Context, userQuery string) (*domain.MasterRunResponse, error) {
	body, err := json.Marshal(map[string]string{"user_query": userQuery})
	if err != nil {
		return nil, fmt.Errorf("encode master request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.masterBase+"/run", strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: master: %v", ErrAgentUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: master: %v", ErrAgentUnavailable, err)
	}

	var resp domain.MasterRunResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: master: decode response: %v", ErrAgentUnavailable, err)
	}
	return &resp, nil
}

// GenerateReport asks the report backend for a new artifact.
func (c *Client) GenerateReport(ctx context.Context, topic string) (*domain.ReportPayload, error) {
	q := url.Values{}
	q.Set("report_type", "pdf")
	q.Set("topic", topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.workerBase+"/api/generate-report?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: report: %v", ErrAgentUnavailable, err)
	}

	raw, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: report: %v", ErrAgentUnavailable, err)
	}

	var report domain.ReportPayload
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("%w: report: decode response: %v", ErrAgentUnavailable, err)
	}
	return &report, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (json.RawMessage, error) {
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", res.StatusCode)
	}
	if !json.Valid(body) {
		return nil, errors.New("malformed JSON body")
	}
	return body, nil
}

// newEnvelope normalizes a raw worker body: the typed payload is decoded
// and the summary is lifted from the response when present, otherwise
// the per-agent fallback is used.
func newEnvelope(id domain.AgentID, raw json.RawMessage) (*domain.ResultEnvelope, error) {
	data, err := domain.DecodePayload(id, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAgentUnavailable, id, err)
	}

	var head struct {
		Summary string `json:"summary"`
	}
	// Already validated as JSON; a missing summary field is fine.
	_ = json.Unmarshal(raw, &head)
	summary := head.Summary
	if summary == "" {
		summary = fallbackSummaries[id]
	}

	return &domain.ResultEnvelope{
		AgentID:    id,
		Summary:    summary,
		Raw:        raw,
		Data:       data,
		ReceivedAt: time.Now(),
	}, nil
}

// EnvelopeFromWorkerResult normalizes one sub-result of a master
// dispatch into an envelope for the given identifier.
func EnvelopeFromWorkerResult(id domain.AgentID, wr domain.WorkerResult) *domain.ResultEnvelope {
	summary := wr.Summary
	if summary == "" {
		summary = fallbackSummaries[id]
	}
	env := &domain.ResultEnvelope{
		AgentID:    id,
		Summary:    summary,
		Raw:        wr.Raw,
		ReceivedAt: time.Now(),
	}
	// Sub-result bodies are agent-schema JSON; decode failures leave
	// Data nil and keep the raw passthrough.
	if data, err := domain.DecodePayload(id, wr.Raw); err == nil {
		env.Data = data
	}
	return env
}

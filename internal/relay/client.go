// Package relay implements the outbound HTTP client used to push alerts,
// comments and status updates to collaborating services. Every push is
// authenticated with a shared service key header and bounded by a hard
// timeout; the client itself never retries, durable retry policy lives in
// the outbox worker.
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/iburossy/bolle-backend/internal/domain"
)

// HeaderServiceKey carries the shared secret on every inter-service call.
const HeaderServiceKey = "X-Service-Key"

// HeaderServiceID names the sending service on every inter-service call.
// Receivers resolve it against their service directory to find the origin
// for comment forwarding and status push-back.
const HeaderServiceID = "X-Service-Id"

// GeoPoint is the GeoJSON point carried in relay payloads. Coordinates
// are [longitude, latitude].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address,omitempty"`
}

// ProofPayload is one proof descriptor as transmitted on the wire.
type ProofPayload struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// AlertPayload is the full alert representation pushed to the owning
// domain service. CitizenID is omitted for anonymous alerts. Location is
// a pointer so a payload that never carried a location stays nil instead
// of decoding to coordinates (0,0).
type AlertPayload struct {
	AlertID     string         `json:"alertId"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Location    *GeoPoint      `json:"location"`
	Proofs      []ProofPayload `json:"proofs"`
	IsAnonymous bool           `json:"isAnonymous"`
	CitizenID   string         `json:"citizenId,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// CommentPayload forwards a citizen comment to the domain copy.
type CommentPayload struct {
	Text       string `json:"text"`
	AuthorType string `json:"authorType"`
	CitizenID  string `json:"citizenId,omitempty"`
}

// StatusPayload pushes a domain-side status change back to the origin
// service's webhook.
type StatusPayload struct {
	AlertID   string `json:"alertId"`
	Status    string `json:"status"`
	Comment   string `json:"comment,omitempty"`
	UpdatedBy string `json:"updatedBy,omitempty"`
}

// pushResponse is the accepted-alert acknowledgment returned by consumers.
type pushResponse struct {
	ServiceReferenceID string `json:"serviceReferenceId"`
}

// BuildAlertPayload maps a persisted alert onto the wire representation.
func BuildAlertPayload(a *domain.Alert) AlertPayload {
	proofs := make([]ProofPayload, 0, len(a.Proofs))
	for _, p := range a.Proofs {
		proofs = append(proofs, ProofPayload{Type: string(p.Kind), URL: p.URL})
	}
	payload := AlertPayload{
		AlertID:     a.ID,
		Category:    a.Category,
		Description: a.Description,
		Location: &GeoPoint{
			Type:        "Point",
			Coordinates: [2]float64{a.Lon, a.Lat},
			Address:     a.Address,
		},
		Proofs:      proofs,
		IsAnonymous: a.IsAnonymous,
		CreatedAt:   a.CreatedAt,
	}
	if !a.IsAnonymous && a.CitizenID != nil {
		payload.CitizenID = *a.CitizenID
	}
	return payload
}

// Client is a thin wrapper around resty scoped to one shared service key.
// Target base URLs vary per push because each alert category is owned by
// a different service.
type Client struct {
	http *resty.Client
	log  zerolog.Logger
}

// New builds a relay client with the given shared key, this deployment's
// directory id, and a per-request timeout. Zero timeout falls back to
// 10 seconds.
func New(serviceKey, serviceID string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader(HeaderServiceKey, serviceKey)
	if serviceID != "" {
		httpClient.SetHeader(HeaderServiceID, serviceID)
	}
	return &Client{http: httpClient, log: log}
}

// PushAlert delivers an alert payload to the service at baseURL and
// returns the consumer's reference id for the created copy.
func (c *Client) PushAlert(ctx context.Context, baseURL string, payload AlertPayload) (string, error) {
	var out pushResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		Post(baseURL + "/external/alerts")
	if err != nil {
		return "", fmt.Errorf("relay alert %s: %w", payload.AlertID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("relay alert %s: target returned %d", payload.AlertID, resp.StatusCode())
	}
	c.log.Debug().
		Str("alert_id", payload.AlertID).
		Str("reference", out.ServiceReferenceID).
		Msg("alert relayed")
	return out.ServiceReferenceID, nil
}

// PushComment forwards a comment to the domain copy. The reference is
// the originating alert id, which the receiving side stores alongside
// its own record.
func (c *Client) PushComment(ctx context.Context, baseURL, reference string, payload CommentPayload) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(baseURL + "/external/alerts/" + reference + "/comments")
	if err != nil {
		return fmt.Errorf("forward comment to %s: %w", reference, err)
	}
	if resp.IsError() {
		return fmt.Errorf("forward comment to %s: target returned %d", reference, resp.StatusCode())
	}
	return nil
}

// PushStatus delivers a status change to the origin service's webhook.
func (c *Client) PushStatus(ctx context.Context, baseURL string, payload StatusPayload) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(baseURL + "/webhooks/alert-status")
	if err != nil {
		return fmt.Errorf("push status for %s: %w", payload.AlertID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("push status for %s: target returned %d", payload.AlertID, resp.StatusCode())
	}
	return nil
}

// PushRaw delivers a pre-serialized JSON body to path under baseURL. The
// outbox worker uses it to replay stored payloads verbatim.
func (c *Client) PushRaw(ctx context.Context, baseURL, path, body string) (string, error) {
	var out pushResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody([]byte(body)).
		SetResult(&out).
		Post(baseURL + path)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("target returned %d", resp.StatusCode())
	}
	return out.ServiceReferenceID, nil
}

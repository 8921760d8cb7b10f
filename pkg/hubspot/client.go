package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/crmpilot/pkg/httpx"
)

const (
	contactsPath       = "/crm/v3/objects/contacts"
	contactsSearchPath = "/crm/v3/objects/contacts/search"
	dealsPath          = "/crm/v3/objects/deals"
)

// Client issues contact and deal mutations against the HubSpot v3 API.
// It holds no durable state; the CRM is the single source of truth.
type Client struct {
	api *httpx.Client
	now func() time.Time
}

func NewClient(cfg Config, opts ...httpx.Option) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("hubspot access token is required")
	}

	apiOpts := append([]httpx.Option{httpx.WithTimeout(cfg.Timeout)}, opts...)
	api, err := httpx.NewClient(cfg.BaseURL, cfg.AccessToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("hubspot client: %w", err)
	}

	return &Client{api: api, now: time.Now}, nil
}

type objectResponse struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type searchResponse struct {
	Results []objectResponse `json:"results"`
}

// UpsertContact creates a contact keyed on email, or converges onto the
// existing record when the provider reports a uniqueness conflict. Two
// concurrent upserts for the same email both end up with the one record
// the provider kept; the loser detects the conflict and falls back to
// lookup plus update. There is no locking here on purpose: uniqueness is
// enforced server-side.
func (c *Client) UpsertContact(ctx context.Context, in ContactInput) (*Contact, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	email := NormalizeEmail(in.Email)

	raw, err := c.api.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		Path:   contactsPath,
		Body:   map[string]any{"properties": in.properties()},
		// The conflict fallback below makes this create idempotent at
		// the application layer, so transient failures may be retried.
		Idempotent: true,
	})
	if err == nil {
		var created objectResponse
		if err := json.Unmarshal(raw, &created); err != nil {
			return nil, fmt.Errorf("decode contact response: %w", err)
		}
		log.Info().Str("email", email).Str("contact_id", created.ID).Msg("contact created")
		return &Contact{ID: created.ID, Properties: created.Properties}, nil
	}

	if httpx.StatusOf(err) != http.StatusConflict {
		return nil, err
	}

	existing, lookupErr := c.findContactByEmail(ctx, email)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if existing == nil {
		// Conflict was reported but the record is gone, which takes a
		// delete racing between the conflict and the lookup. Surface it
		// as a transient anomaly so a retry can settle it.
		log.Warn().Str("email", email).Msg("contact conflict reported but existing record not found")
		return nil, fmt.Errorf("%w: contact conflict for %s resolved to no record", httpx.ErrNetwork, email)
	}

	merged, mergeErr := c.mergeContact(ctx, existing, in)
	if mergeErr != nil {
		return nil, mergeErr
	}
	log.Info().Str("email", email).Str("contact_id", merged.ID).Msg("contact already existed, merged fields")
	merged.Existing = true
	return merged, nil
}

// mergeContact applies newly supplied optional fields onto the record the
// upsert lost the create race to.
func (c *Client) mergeContact(ctx context.Context, existing *objectResponse, in ContactInput) (*Contact, error) {
	patch := map[string]string{}
	if in.FirstName != "" {
		patch["firstname"] = in.FirstName
	}
	if in.LastName != "" {
		patch["lastname"] = in.LastName
	}
	if in.Phone != "" {
		patch["phone"] = in.Phone
	}

	if len(patch) == 0 {
		return &Contact{ID: existing.ID, Properties: existing.Properties}, nil
	}

	raw, err := c.api.Do(ctx, httpx.Request{
		Method:     http.MethodPatch,
		Path:       contactsPath + "/" + existing.ID,
		Body:       map[string]any{"properties": patch},
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}

	var updated objectResponse
	if err := json.Unmarshal(raw, &updated); err != nil {
		return nil, fmt.Errorf("decode contact response: %w", err)
	}
	return &Contact{ID: updated.ID, Properties: updated.Properties}, nil
}

// UpdateContact applies a partial update, resolving the identifier by
// email lookup when only an email was given.
func (c *Client) UpdateContact(ctx context.Context, in UpdateContactInput) (*Contact, error) {
	contactID := strings.TrimSpace(in.ContactID)
	if contactID == "" {
		if err := in.validate(); err != nil {
			return nil, err
		}
		email := NormalizeEmail(in.Email)
		existing, err := c.findContactByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("%w: no contact for email %s", httpx.ErrNotFound, email)
		}
		contactID = existing.ID
	}

	patch := map[string]string{}
	if in.FirstName != "" {
		patch["firstname"] = in.FirstName
	}
	if in.LastName != "" {
		patch["lastname"] = in.LastName
	}
	if in.Phone != "" {
		patch["phone"] = in.Phone
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	raw, err := c.api.Do(ctx, httpx.Request{
		Method:     http.MethodPatch,
		Path:       contactsPath + "/" + contactID,
		Body:       map[string]any{"properties": patch},
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}

	var updated objectResponse
	if err := json.Unmarshal(raw, &updated); err != nil {
		return nil, fmt.Errorf("decode contact response: %w", err)
	}
	return &Contact{ID: updated.ID, Properties: updated.Properties}, nil
}

// CreateDeal creates the deal first and only then attempts the contact
// association. Association failures are reported in the result rather
// than failing the call: the deal already exists at that point.
func (c *Client) CreateDeal(ctx context.Context, in DealInput) (*DealResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	props := map[string]string{
		"dealname":  c.defaultDealName(in),
		"dealstage": NormalizeStage(in.Stage),
	}
	if in.Amount != nil {
		props["amount"] = strconv.FormatFloat(*in.Amount, 'f', -1, 64)
	}
	if pipeline := strings.TrimSpace(in.Pipeline); pipeline != "" {
		props["pipeline"] = pipeline
	}

	raw, err := c.api.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		Path:   dealsPath,
		Body:   map[string]any{"properties": props},
		// Deals carry no natural identity, so a retried create would
		// duplicate the record.
		Idempotent: false,
	})
	if err != nil {
		return nil, err
	}

	var created objectResponse
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("decode deal response: %w", err)
	}
	log.Info().Str("deal_id", created.ID).Str("name", props["dealname"]).Msg("deal created")

	result := &DealResult{Deal: Deal{ID: created.ID, Properties: created.Properties}}

	email := NormalizeEmail(in.AssociatedContactEmail)
	if email == "" {
		return result, nil
	}

	contactID, assocErr := c.associateDealContact(ctx, created.ID, email)
	if assocErr != nil {
		log.Warn().Str("deal_id", created.ID).Str("email", email).Err(assocErr).
			Msg("deal created but association failed")
		result.AssociationError = assocErr.Error()
		return result, nil
	}
	result.AssociatedContactID = contactID
	return result, nil
}

func (c *Client) associateDealContact(ctx context.Context, dealID, email string) (string, error) {
	existing, err := c.findContactByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("resolve contact: %w", err)
	}
	if existing == nil {
		return "", fmt.Errorf("%w: no contact for email %s", httpx.ErrNotFound, email)
	}

	_, err = c.api.Do(ctx, httpx.Request{
		Method:     http.MethodPut,
		Path:       fmt.Sprintf("%s/%s/associations/contacts/%s/deal_to_contact", dealsPath, dealID, existing.ID),
		Idempotent: true,
	})
	if err != nil {
		return "", fmt.Errorf("associate deal to contact: %w", err)
	}
	return existing.ID, nil
}

// UpdateDeal applies a partial update to an existing deal.
func (c *Client) UpdateDeal(ctx context.Context, dealID string, in DealInput) (*Deal, error) {
	if strings.TrimSpace(dealID) == "" {
		return nil, fmt.Errorf("%w: deal id is required", ErrValidation)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	patch := map[string]string{}
	if name := strings.TrimSpace(in.Name); name != "" {
		patch["dealname"] = name
	}
	if in.Amount != nil {
		patch["amount"] = strconv.FormatFloat(*in.Amount, 'f', -1, 64)
	}
	if stage := strings.TrimSpace(in.Stage); stage != "" {
		patch["dealstage"] = NormalizeStage(stage)
	}
	if pipeline := strings.TrimSpace(in.Pipeline); pipeline != "" {
		patch["pipeline"] = pipeline
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	raw, err := c.api.Do(ctx, httpx.Request{
		Method:     http.MethodPatch,
		Path:       dealsPath + "/" + strings.TrimSpace(dealID),
		Body:       map[string]any{"properties": patch},
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}

	var updated objectResponse
	if err := json.Unmarshal(raw, &updated); err != nil {
		return nil, fmt.Errorf("decode deal response: %w", err)
	}
	return &Deal{ID: updated.ID, Properties: updated.Properties}, nil
}

func (c *Client) defaultDealName(in DealInput) string {
	if name := strings.TrimSpace(in.Name); name != "" {
		return name
	}
	if email := NormalizeEmail(in.AssociatedContactEmail); email != "" {
		return "Deal for " + email
	}
	return "Untitled Deal " + c.now().UTC().Format(time.RFC3339)
}

// findContactByEmail resolves a contact through the search endpoint.
// Returns nil without error when no record matches.
func (c *Client) findContactByEmail(ctx context.Context, email string) (*objectResponse, error) {
	query := map[string]any{
		"filterGroups": []map[string]any{
			{
				"filters": []map[string]any{
					{"propertyName": "email", "operator": "EQ", "value": email},
				},
			},
		},
		"properties": []string{"email", "firstname", "lastname", "phone"},
		"limit":      1,
	}

	raw, err := c.api.Do(ctx, httpx.Request{
		Method:     http.MethodPost,
		Path:       contactsSearchPath,
		Body:       query,
		Idempotent: true,
	})
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}
	return &parsed.Results[0], nil
}

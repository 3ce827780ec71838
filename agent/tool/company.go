package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/pkg/httpx"
)

const (
	DefaultCompanyBaseURL = "https://api.crunchbase.com/api/v4"
	maxCompanyBodyBytes   = 1 << 20
)

var organizationFields = []string{
	"identifier",
	"short_description",
	"website_url",
	"founded_on",
	"num_employees_enum",
	"funding_total",
	"last_funding_type",
	"categories",
	"founder_identifiers",
	"location_identifiers",
}

// CompanyProfile is the structured company record returned to the model.
type CompanyProfile struct {
	Name            string   `json:"name"`
	Permalink       string   `json:"permalink"`
	Description     string   `json:"description,omitempty"`
	Website         string   `json:"website,omitempty"`
	FoundedOn       string   `json:"foundedOn,omitempty"`
	Employees       string   `json:"employees,omitempty"`
	FundingTotalUSD float64  `json:"fundingTotalUsd,omitempty"`
	LastFundingType string   `json:"lastFundingType,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Founders        []string `json:"founders,omitempty"`
	Locations       []string `json:"locations,omitempty"`
	Source          string   `json:"source"`
}

// CompanyLookup queries the Crunchbase v4 API: autocomplete resolves a name to
// a permalink, then the organization entity supplies the profile.
type CompanyLookup struct {
	baseURL    string
	httpClient *http.Client
}

func NewCompanyLookup(baseURL string, client *http.Client) *CompanyLookup {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultCompanyBaseURL
	}
	if client == nil {
		client = httpx.NewClient()
	}
	return &CompanyLookup{baseURL: baseURL, httpClient: client}
}

type cbIdentifier struct {
	Permalink string `json:"permalink"`
	Value     string `json:"value"`
}

type cbAutocomplete struct {
	Entities []struct {
		Identifier       cbIdentifier `json:"identifier"`
		ShortDescription string       `json:"short_description"`
	} `json:"entities"`
}

type cbEntity struct {
	Properties struct {
		Identifier       cbIdentifier `json:"identifier"`
		ShortDescription string       `json:"short_description"`
		WebsiteURL       string       `json:"website_url"`
		FoundedOn        *struct {
			Value string `json:"value"`
		} `json:"founded_on"`
		NumEmployeesEnum string `json:"num_employees_enum"`
		FundingTotal     *struct {
			ValueUSD float64 `json:"value_usd"`
		} `json:"funding_total"`
		LastFundingType     string         `json:"last_funding_type"`
		Categories          []cbIdentifier `json:"categories"`
		FounderIdentifiers  []cbIdentifier `json:"founder_identifiers"`
		LocationIdentifiers []cbIdentifier `json:"location_identifiers"`
	} `json:"properties"`
}

func (c *CompanyLookup) Lookup(ctx context.Context, apiKey, name string) (*CompanyProfile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: company name is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("%w: crunchbase key is missing", contractx.ErrCredential)
	}

	var ac cbAutocomplete
	q := url.Values{
		"query":          {name},
		"collection_ids": {"organizations"},
		"limit":          {"1"},
	}
	if err := c.get(ctx, apiKey, "/autocompletes?"+q.Encode(), &ac); err != nil {
		return nil, err
	}
	if len(ac.Entities) == 0 || ac.Entities[0].Identifier.Permalink == "" {
		return nil, fmt.Errorf("%w: no company found for %q", contractx.ErrToolFailure, name)
	}
	permalink := ac.Entities[0].Identifier.Permalink

	var ent cbEntity
	fields := url.Values{"field_ids": {strings.Join(organizationFields, ",")}}
	if err := c.get(ctx, apiKey, "/entities/organizations/"+url.PathEscape(permalink)+"?"+fields.Encode(), &ent); err != nil {
		return nil, err
	}

	p := ent.Properties
	profile := &CompanyProfile{
		Name:            p.Identifier.Value,
		Permalink:       permalink,
		Description:     p.ShortDescription,
		Website:         p.WebsiteURL,
		Employees:       p.NumEmployeesEnum,
		LastFundingType: p.LastFundingType,
		Categories:      identifierValues(p.Categories),
		Founders:        identifierValues(p.FounderIdentifiers),
		Locations:       identifierValues(p.LocationIdentifiers),
		Source:          "crunchbase",
	}
	if profile.Name == "" {
		profile.Name = ac.Entities[0].Identifier.Value
	}
	if profile.Description == "" {
		profile.Description = ac.Entities[0].ShortDescription
	}
	if p.FoundedOn != nil {
		profile.FoundedOn = p.FoundedOn.Value
	}
	if p.FundingTotal != nil {
		profile.FundingTotalUSD = p.FundingTotal.ValueUSD
	}
	return profile, nil
}

func (c *CompanyLookup) get(ctx context.Context, apiKey, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("crunchbase: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-cb-user-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crunchbase: request failed: %w", err)
	}
	defer httpx.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: crunchbase rejected the key (HTTP %d)", contractx.ErrCredential, resp.StatusCode)
	}
	if err := httpx.CheckStatus("crunchbase", resp, maxErrorBodyBytes); err != nil {
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCompanyBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("crunchbase: decode response: %w", err)
	}
	return nil
}

func identifierValues(ids []cbIdentifier) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id.Value != "" {
			out = append(out, id.Value)
		}
	}
	return out
}

// Package registry talks to the SDMX structure registry (the FMR REST API)
// to resolve data structure definitions and VTL transformation schemes.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/leibridge/leibridge/internal/cache"
	"github.com/leibridge/leibridge/internal/vtl"
)

// Sentinel errors for registry client failures.
var (
	ErrStructureNotFound = errors.New("structure not found in registry")
	ErrRegistryError     = errors.New("registry error")
)

const (
	fusionJSONMediaType = "application/vnd.fusion.json"

	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = time.Hour
)

// Component is one column of a data structure definition. Role is dimension,
// measure or attribute.
type Component struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Schema is a resolved data structure definition.
type Schema struct {
	Agency     string      `json:"agency"`
	ID         string      `json:"id"`
	Version    string      `json:"version"`
	Components []Component `json:"components"`
}

// MissingComponents returns the schema component IDs absent from cols.
func (s *Schema) MissingComponents(cols []string) []string {
	present := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		present[c] = struct{}{}
	}
	var missing []string
	for _, comp := range s.Components {
		if _, ok := present[comp.ID]; !ok {
			missing = append(missing, comp.ID)
		}
	}
	return missing
}

// Client is the interface for registry lookups.
type Client interface {
	GetSchema(ctx context.Context, agency, id, version string) (*Schema, error)
	GetTransformationScheme(ctx context.Context, agency, id, version string) (*vtl.Scheme, error)
}

// HTTPClient implements Client against the registry's Fusion-JSON structure
// endpoints, with read-through caching of resolved artifacts. Structures are
// immutable per version, so cached entries only expire to bound memory.
type HTTPClient struct {
	endpoint string
	cache    cache.Cache
	cacheTTL time.Duration
	client   *http.Client
}

// NewHTTPClient creates a registry client. The cache may be nil, in which
// case every lookup goes to the network.
func NewHTTPClient(endpoint string, ca cache.Cache, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		endpoint: endpoint,
		cache:    ca,
		cacheTTL: defaultCacheTTL,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetSchema(ctx context.Context, agency, id, version string) (*Schema, error) {
	key := cache.SchemaKey(agency, id, version)
	if cached, ok := c.fromCache(ctx, key); ok {
		var s Schema
		if err := json.Unmarshal(cached, &s); err == nil {
			return &s, nil
		}
	}

	body, err := c.fetchStructure(ctx, "datastructure", agency, id, version)
	if err != nil {
		return nil, err
	}

	var resp dataStructureResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding datastructure response: %w", err)
	}
	if len(resp.DataStructure) == 0 {
		return nil, fmt.Errorf("%w: datastructure %s:%s(%s)", ErrStructureNotFound, agency, id, version)
	}

	schema := resp.DataStructure[0].toSchema()
	c.toCache(ctx, key, schema)
	return schema, nil
}

func (c *HTTPClient) GetTransformationScheme(ctx context.Context, agency, id, version string) (*vtl.Scheme, error) {
	key := cache.SchemeKey(agency, id, version)
	if cached, ok := c.fromCache(ctx, key); ok {
		var s vtl.Scheme
		if err := json.Unmarshal(cached, &s); err == nil {
			return &s, nil
		}
	}

	body, err := c.fetchStructure(ctx, "transformationscheme", agency, id, version)
	if err != nil {
		return nil, err
	}

	var resp transformationSchemeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding transformationscheme response: %w", err)
	}
	if len(resp.TransformationScheme) == 0 {
		return nil, fmt.Errorf("%w: transformationscheme %s:%s(%s)", ErrStructureNotFound, agency, id, version)
	}

	scheme := resp.TransformationScheme[0].toScheme()
	c.toCache(ctx, key, scheme)
	return scheme, nil
}

// fetchStructure performs one GET against a structure endpoint.
func (c *HTTPClient) fetchStructure(ctx context.Context, kind, agency, id, version string) ([]byte, error) {
	u := fmt.Sprintf("%s/structure/%s/%s/%s/%s",
		c.endpoint, kind, url.PathEscape(agency), url.PathEscape(id), url.PathEscape(version))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", fusionJSONMediaType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s %s:%s(%s)", ErrStructureNotFound, kind, agency, id, version)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRegistryError, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", kind, err)
	}
	return body, nil
}

func (c *HTTPClient) fromCache(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	val, found, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("registry cache read failed", "key", key, "error", err)
		return nil, false
	}
	return val, found
}

func (c *HTTPClient) toCache(ctx context.Context, key string, v any) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
		slog.Warn("registry cache write failed", "key", key, "error", err)
	}
}

// --- Fusion-JSON response types ---

type dataStructureResponse struct {
	DataStructure []fusionDataStructure `json:"DataStructure"`
}

type fusionDataStructure struct {
	ID            string `json:"id"`
	AgencyID      string `json:"agencyId"`
	Version       string `json:"version"`
	DimensionList struct {
		Dimensions []fusionComponent `json:"dimensions"`
	} `json:"dimensionList"`
	Measures      []fusionComponent `json:"measures"`
	AttributeList struct {
		Attributes []fusionComponent `json:"attributes"`
	} `json:"attributeList"`
}

type fusionComponent struct {
	ID string `json:"id"`
}

func (ds fusionDataStructure) toSchema() *Schema {
	s := &Schema{Agency: ds.AgencyID, ID: ds.ID, Version: ds.Version}
	for _, d := range ds.DimensionList.Dimensions {
		s.Components = append(s.Components, Component{ID: d.ID, Role: "dimension"})
	}
	for _, m := range ds.Measures {
		s.Components = append(s.Components, Component{ID: m.ID, Role: "measure"})
	}
	for _, a := range ds.AttributeList.Attributes {
		s.Components = append(s.Components, Component{ID: a.ID, Role: "attribute"})
	}
	return s
}

type transformationSchemeResponse struct {
	TransformationScheme []fusionTransformationScheme `json:"TransformationScheme"`
}

type fusionTransformationScheme struct {
	ID       string `json:"id"`
	AgencyID string `json:"agencyId"`
	Version  string `json:"version"`
	Items    []struct {
		ID           string `json:"id"`
		Expression   string `json:"expression"`
		Result       string `json:"result"`
		IsPersistent bool   `json:"isPersistent"`
	} `json:"items"`
}

func (ts fusionTransformationScheme) toScheme() *vtl.Scheme {
	s := &vtl.Scheme{Agency: ts.AgencyID, ID: ts.ID, Version: ts.Version}
	for _, it := range ts.Items {
		s.Transformations = append(s.Transformations, vtl.Transformation{
			ID:         it.ID,
			Expression: it.Expression,
			Result:     it.Result,
			Persistent: it.IsPersistent,
		})
	}
	return s
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

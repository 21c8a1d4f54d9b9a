package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ErlanBelekov/offboarding-scheduler/internal/domain"
	"golang.org/x/oauth2/clientcredentials"
)

type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string // defaults to the tenant's Entra ID v2 token endpoint
}

// GraphDirectory calls Microsoft Graph with an app-only token.
type GraphDirectory struct {
	client  *http.Client
	baseURL string
}

// NewGraphDirectory builds a client whose transport fetches and refreshes
// client-credentials tokens on its own. Token requests keep ctx's values but
// not its cancellation: a claimed run may still need a fresh token while the
// process is shutting down.
func NewGraphDirectory(ctx context.Context, cfg GraphConfig) *GraphDirectory {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	return newGraphDirectory(cc.Client(context.WithoutCancel(ctx)), cfg.BaseURL)
}

func newGraphDirectory(client *http.Client, baseURL string) *GraphDirectory {
	return &GraphDirectory{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// GraphError carries the upstream error body. Error returns the upstream
// message unchanged so it can be shown to operators as is.
type GraphError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GraphError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("graph request failed with status %d", e.StatusCode)
}

func (g *GraphDirectory) LookupUser(ctx context.Context, userID string) (*User, error) {
	var u User
	path := "/users/" + url.PathEscape(userID) + "?$select=id,displayName,mail,userPrincipalName,accountEnabled"
	if err := g.do(ctx, http.MethodGet, path, nil, &u); err != nil {
		var gerr *GraphError
		if errors.As(err, &gerr) && gerr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrSubjectNotFound, gerr.Error())
		}
		return nil, err
	}
	return &u, nil
}

func (g *GraphDirectory) DisableAccount(ctx context.Context, userID string) error {
	body := map[string]bool{"accountEnabled": false}
	return g.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID), body, nil)
}

func (g *GraphDirectory) RevokeSessions(ctx context.Context, userID string) error {
	return g.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/revokeSignInSessions", nil, nil)
}

type directoryObject struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// RemoveFromAllGroups tries every group and reports each failure. Dynamic
// and on-premises synced groups reject direct removal.
func (g *GraphDirectory) RemoveFromAllGroups(ctx context.Context, userID string) (int, error) {
	groups, err := listAll[directoryObject](ctx, g,
		"/users/"+url.PathEscape(userID)+"/memberOf/microsoft.graph.group?$select=id,displayName")
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, grp := range groups {
		path := "/groups/" + url.PathEscape(grp.ID) + "/members/" + url.PathEscape(userID) + "/$ref"
		if err := g.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", objectLabel(grp), err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (g *GraphDirectory) RemoveDevices(ctx context.Context, userID string) (int, error) {
	devices, err := listAll[directoryObject](ctx, g,
		"/users/"+url.PathEscape(userID)+"/ownedDevices/microsoft.graph.device?$select=id,displayName")
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, dev := range devices {
		if err := g.do(ctx, http.MethodDelete, "/devices/"+url.PathEscape(dev.ID), nil, nil); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", objectLabel(dev), err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func objectLabel(o directoryObject) string {
	if o.DisplayName != "" {
		return o.DisplayName
	}
	return o.ID
}

type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// listAll follows @odata.nextLink until the collection is exhausted.
func listAll[T any](ctx context.Context, g *GraphDirectory, path string) ([]T, error) {
	var out []T
	next := g.baseURL + path
	for next != "" {
		var p page[T]
		if err := g.doURL(ctx, http.MethodGet, next, nil, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Value...)
		next = p.NextLink
	}
	return out, nil
}

func (g *GraphDirectory) do(ctx context.Context, method, path string, body, out any) error {
	return g.doURL(ctx, method, g.baseURL+path, body, out)
}

func (g *GraphDirectory) doURL(ctx context.Context, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode graph request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("graph %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeGraphError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

func decodeGraphError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&envelope)
	return &GraphError{
		StatusCode: resp.StatusCode,
		Code:       envelope.Error.Code,
		Message:    envelope.Error.Message,
	}
}

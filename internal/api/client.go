package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"credvault/internal/models"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "CREDVAULT_HTTP_TIMEOUT"
	adminTokenEnvKey   = "CREDVAULT_ADMIN_TOKEN"
	userEnvKey         = "CREDVAULT_USER"
	passwordEnvKey     = "CREDVAULT_PASSWORD"
)

// Client is a simple HTTP client for the credvault API.
type Client struct {
	baseURL    string
	http       *http.Client
	adminToken string
	username   string
	password   string
}

// NewClient creates a new API client. Basic credentials from the environment
// take precedence over the admin token.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
		username:   strings.TrimSpace(os.Getenv(userEnvKey)),
		password:   os.Getenv(passwordEnvKey),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

func (c *Client) WhoAmI(ctx context.Context) (AuthMeResponse, error) {
	var resp AuthMeResponse
	err := c.do(ctx, http.MethodGet, "/v1/auth/me", nil, nil, &resp)
	return resp, err
}

// UploadBlob sends content as a multipart upload.
func (c *Client) UploadBlob(ctx context.Context, content io.Reader, filename, mediaType string) (models.Blob, error) {
	var resp models.Blob

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("media_type", mediaType); err != nil {
		return resp, err
	}
	if err := mw.WriteField("filename", filename); err != nil {
		return resp, err
	}
	part, err := mw.CreateFormFile("content", filename)
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return resp, err
	}
	if err := mw.Close(); err != nil {
		return resp, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/blobs", &body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setAuthHeader(req)

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func (c *Client) GetBlob(ctx context.Context, digest string) (models.Blob, error) {
	var resp models.Blob
	err := c.do(ctx, http.MethodGet, "/v1/blobs/"+url.PathEscape(digest), nil, nil, &resp)
	return resp, err
}

// DownloadBlob streams blob content to w.
func (c *Client) DownloadBlob(ctx context.Context, digest string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/blobs/"+url.PathEscape(digest)+"/content", nil)
	if err != nil {
		return err
	}
	c.setAuthHeader(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

func (c *Client) BlobReferences(ctx context.Context, digest string) (BlobReferencesResponse, error) {
	var resp BlobReferencesResponse
	err := c.do(ctx, http.MethodGet, "/v1/blobs/"+url.PathEscape(digest)+"/references", nil, nil, &resp)
	return resp, err
}

func (c *Client) DeleteBlob(ctx context.Context, digest string) (models.Blob, error) {
	var resp models.Blob
	err := c.do(ctx, http.MethodDelete, "/v1/blobs/"+url.PathEscape(digest), nil, nil, &resp)
	return resp, err
}

func (c *Client) GCBlobs(ctx context.Context, apply bool, batchSize int) (BlobGCResponse, error) {
	var resp BlobGCResponse
	query := url.Values{}
	if apply {
		query.Set("apply", "true")
	}
	if batchSize > 0 {
		query.Set("batch_size", strconv.Itoa(batchSize))
	}
	err := c.do(ctx, http.MethodPost, "/v1/admin/blobs/gc", query, nil, &resp)
	return resp, err
}

func (c *Client) CreateCredential(ctx context.Context, kind models.CredentialKind, req CredentialCreateRequest) (models.Credential, error) {
	var resp models.Credential
	err := c.do(ctx, http.MethodPost, "/v1/"+kind.Plural(), nil, req, &resp)
	return resp, err
}

func (c *Client) GetCredential(ctx context.Context, kind models.CredentialKind, id string) (models.Credential, error) {
	var resp models.Credential
	err := c.do(ctx, http.MethodGet, "/v1/"+kind.Plural()+"/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

func (c *Client) ListCredentials(ctx context.Context, kind models.CredentialKind, personID string) ([]models.Credential, error) {
	var resp []models.Credential
	err := c.do(ctx, http.MethodGet, "/v1/persons/"+url.PathEscape(personID)+"/"+kind.Plural(), nil, nil, &resp)
	return resp, err
}

func (c *Client) DecideCredential(ctx context.Context, kind models.CredentialKind, id string, req DecisionRequest) (models.Credential, error) {
	var resp models.Credential
	err := c.do(ctx, http.MethodPost, "/v1/"+kind.Plural()+"/"+url.PathEscape(id)+"/decision", nil, req, &resp)
	return resp, err
}

// DeleteCredential removes a record. With releaseBlob the server also deletes
// the record's blob when nothing else references it.
func (c *Client) DeleteCredential(ctx context.Context, kind models.CredentialKind, id string, releaseBlob bool) (CredentialDeleteResponse, error) {
	var resp CredentialDeleteResponse
	var query url.Values
	if releaseBlob {
		query = url.Values{"release_blob": []string{"true"}}
	}
	err := c.do(ctx, http.MethodDelete, "/v1/"+kind.Plural()+"/"+url.PathEscape(id), query, nil, &resp)
	return resp, err
}

func (c *Client) CreateContract(ctx context.Context, req ContractCreateRequest) (models.Contract, error) {
	var resp models.Contract
	err := c.do(ctx, http.MethodPost, "/v1/contracts", nil, req, &resp)
	return resp, err
}

func (c *Client) GetContract(ctx context.Context, publicID string) (models.Contract, error) {
	var resp models.Contract
	err := c.do(ctx, http.MethodGet, "/v1/contracts/"+url.PathEscape(publicID), nil, nil, &resp)
	return resp, err
}

func (c *Client) ListContracts(ctx context.Context, instructorID string) ([]models.Contract, error) {
	var resp []models.Contract
	err := c.do(ctx, http.MethodGet, "/v1/instructors/"+url.PathEscape(instructorID)+"/contracts", nil, nil, &resp)
	return resp, err
}

func (c *Client) DeleteContract(ctx context.Context, publicID string) (models.Contract, error) {
	var resp models.Contract
	err := c.do(ctx, http.MethodDelete, "/v1/contracts/"+url.PathEscape(publicID), nil, nil, &resp)
	return resp, err
}

func (c *Client) ImportCatalog(ctx context.Context, catalog models.Catalog) (CatalogImportResponse, error) {
	var resp CatalogImportResponse
	err := c.do(ctx, http.MethodPost, "/v1/catalog/import", nil, catalog, &resp)
	return resp, err
}

func (c *Client) ListCredentialTypes(ctx context.Context, kind string) ([]models.CredentialType, error) {
	var resp []models.CredentialType
	var query url.Values
	if strings.TrimSpace(kind) != "" {
		query = url.Values{"kind": []string{kind}}
	}
	err := c.do(ctx, http.MethodGet, "/v1/credential-types", query, nil, &resp)
	return resp, err
}

func (c *Client) AdminCreateUser(ctx context.Context, req AdminUserCreateRequest) (AdminUser, error) {
	var resp AdminUser
	err := c.do(ctx, http.MethodPost, "/v1/admin/users", nil, req, &resp)
	return resp, err
}

func (c *Client) AdminListUsers(ctx context.Context) ([]AdminUser, error) {
	var resp []AdminUser
	err := c.do(ctx, http.MethodGet, "/v1/admin/users", nil, nil, &resp)
	return resp, err
}

func (c *Client) AdminSetUserDisabled(ctx context.Context, username string, disabled bool) (AdminUser, error) {
	var resp AdminUser
	err := c.do(ctx, http.MethodPatch, "/v1/admin/users/"+url.PathEscape(username), nil, AdminUserSetDisabledRequest{Disabled: disabled}, &resp)
	return resp, err
}

func (c *Client) AdminDeleteUser(ctx context.Context, username string) (AdminUserDeleteResponse, error) {
	var resp AdminUserDeleteResponse
	err := c.do(ctx, http.MethodDelete, "/v1/admin/users/"+url.PathEscape(username), nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      errResp.Code,
			ErrorCode: errResp.ErrorCode,
			Message:   errResp.Error,
			Details:   errResp.Details,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if req == nil {
		return
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
		return
	}
	if c.adminToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Glorc12/AirConditionerCompany/internal/errs"
)

type HTTPClient struct {
	BaseURL string
	Client  *http.Client
	Limiter *rate.Limiter
}

func NewHTTPClient(baseURL string, timeout time.Duration, ratePerSec float64) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Limiter: rate.NewLimiter(limit, burst),
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *HTTPClient) do(ctx context.Context, method, path, token string, body, out any) error {
	if h.Limiter != nil {
		if err := h.Limiter.Wait(ctx); err != nil {
			return errs.Sync(err)
		}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return errs.Sync(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		return statusError(resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Sync(fmt.Errorf("decode %s %s: %w", method, path, err))
	}
	return nil
}

func statusError(code int, msg string) error {
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", errs.ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", errs.ErrPermissionDenied, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", errs.ErrNotFound, msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", errs.ErrValidation, msg)
	default:
		return errs.Sync(fmt.Errorf("remote status %d: %s", code, msg))
	}
}

func (h *HTTPClient) Authenticate(ctx context.Context, login, password string) (LoginResult, error) {
	payload := map[string]string{"login": login, "password": password}
	var out LoginResult
	err := h.do(ctx, http.MethodPost, "/api/auth/login", "", payload, &out)
	if errors.Is(err, errs.ErrUnauthorized) || errors.Is(err, errs.ErrValidation) {
		return LoginResult{}, errs.ErrAuth
	}
	if err != nil {
		return LoginResult{}, err
	}
	if out.AccessToken == "" {
		return LoginResult{}, errs.Sync(errors.New("login response carries no token"))
	}
	return out, nil
}

func (h *HTTPClient) ListRequests(ctx context.Context, token string, page, limit int) (Page, error) {
	if token == "" {
		return Page{}, errs.ErrUnauthorized
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out Page
	if err := h.do(ctx, http.MethodGet, "/api/requests/?"+q.Encode(), token, nil, &out); err != nil {
		return Page{}, err
	}
	return out, nil
}

func (h *HTTPClient) GetRequest(ctx context.Context, token string, id int64) (Request, error) {
	if token == "" {
		return Request{}, errs.ErrUnauthorized
	}
	var out Request
	if err := h.do(ctx, http.MethodGet, "/api/requests/"+strconv.FormatInt(id, 10), token, nil, &out); err != nil {
		return Request{}, err
	}
	return out, nil
}

func (h *HTTPClient) CreateRequest(ctx context.Context, token string, fields CreateFields) (Request, error) {
	if token == "" {
		return Request{}, errs.ErrUnauthorized
	}
	var created struct {
		RequestID int64 `json:"request_id"`
	}
	if err := h.do(ctx, http.MethodPost, "/api/requests/", token, fields, &created); err != nil {
		return Request{}, err
	}
	if created.RequestID == 0 {
		return Request{}, errs.Sync(errors.New("create response carries no request_id"))
	}
	return h.GetRequest(ctx, token, created.RequestID)
}

func (h *HTTPClient) UpdateRequest(ctx context.Context, token string, id int64, fields UpdateFields) (Request, error) {
	if token == "" {
		return Request{}, errs.ErrUnauthorized
	}
	if err := h.do(ctx, http.MethodPut, "/api/requests/"+strconv.FormatInt(id, 10), token, fields, nil); err != nil {
		return Request{}, err
	}
	return h.GetRequest(ctx, token, id)
}

func (h *HTTPClient) DeleteRequest(ctx context.Context, token string, id int64) error {
	if token == "" {
		return errs.ErrUnauthorized
	}
	return h.do(ctx, http.MethodDelete, "/api/requests/"+strconv.FormatInt(id, 10), token, nil, nil)
}

func (h *HTTPClient) ListSpecialists(ctx context.Context, token string) ([]Specialist, error) {
	if token == "" {
		return nil, errs.ErrUnauthorized
	}
	var out struct {
		Data []Specialist `json:"data"`
	}
	if err := h.do(ctx, http.MethodGet, "/api/users/specialists", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (h *HTTPClient) AddComment(ctx context.Context, token string, fields CommentFields) (Comment, error) {
	if token == "" {
		return Comment{}, errs.ErrUnauthorized
	}
	var out Comment
	if err := h.do(ctx, http.MethodPost, "/api/comments/", token, fields, &out); err != nil {
		return Comment{}, err
	}
	return out, nil
}

// ListComments returns the comments of one request in the backend's storage order.
func (h *HTTPClient) ListComments(ctx context.Context, token string, requestID int64) ([]Comment, error) {
	if token == "" {
		return nil, errs.ErrUnauthorized
	}
	var out []Comment
	if err := h.do(ctx, http.MethodGet, "/api/comments/request/"+strconv.FormatInt(requestID, 10), token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

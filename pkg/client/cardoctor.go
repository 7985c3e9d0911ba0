package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"cardoctor/pkg/model"
)

// APIError is a {"error":true,"message":...} reply. Status is the HTTP status
// it arrived with, which may be 200 for an ownership mismatch.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// CarDoctorClient is a typed client for the car-service API.
type CarDoctorClient struct {
	http *HttpClient
}

func NewCarDoctorClient(baseURL string) *CarDoctorClient {
	return &CarDoctorClient{http: NewHttpClient(baseURL)}
}

func (c *CarDoctorClient) HTTP() *HttpClient {
	return c.http
}

func (c *CarDoctorClient) IssueToken(ctx context.Context, claims map[string]any) (string, error) {
	resp, err := c.http.POST(ctx, "/jwt", "", claims)
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := decode(resp, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// ListServices calls GET /services. Empty sort and search are omitted.
func (c *CarDoctorClient) ListServices(ctx context.Context, sort, search string) ([]map[string]any, error) {
	params := url.Values{}
	if sort != "" {
		params.Set("sort", sort)
	}
	if search != "" {
		params.Set("search", search)
	}

	resp, err := c.http.GET(ctx, withQuery("/services", params), "")
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetService returns nil without error when the server reports no match.
func (c *CarDoctorClient) GetService(ctx context.Context, id string) (*model.Service, error) {
	resp, err := c.http.GET(ctx, "/services/"+url.PathEscape(id), "")
	if err != nil {
		return nil, err
	}
	var out *model.Service
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListBookings calls GET /bookings. An empty email omits the query parameter.
func (c *CarDoctorClient) ListBookings(ctx context.Context, token, email string) ([]model.Booking, error) {
	params := url.Values{}
	if email != "" {
		params.Set("email", email)
	}

	resp, err := c.http.GET(ctx, withQuery("/bookings", params), token)
	if err != nil {
		return nil, err
	}
	var out []model.Booking
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CarDoctorClient) CreateBooking(ctx context.Context, token string, booking model.Booking) (*model.InsertResult, error) {
	resp, err := c.http.POST(ctx, "/bookings", token, booking)
	if err != nil {
		return nil, err
	}
	var out model.InsertResult
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CarDoctorClient) UpdateStatus(ctx context.Context, token, id string, status *string) (*model.UpdateResult, error) {
	resp, err := c.http.PATCH(ctx, "/bookings/"+url.PathEscape(id), token, model.StatusUpdate{Status: status})
	if err != nil {
		return nil, err
	}
	var out model.UpdateResult
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CarDoctorClient) DeleteBooking(ctx context.Context, token, id string) (*model.DeleteResult, error) {
	resp, err := c.http.DELETE(ctx, "/bookings/"+url.PathEscape(id), token)
	if err != nil {
		return nil, err
	}
	var out model.DeleteResult
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// decode turns error envelopes into *APIError, whatever the status code.
func decode(resp *Response, target any) error {
	var envelope struct {
		Error   bool   `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(resp.Body, &envelope) == nil && envelope.Error {
		return &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	if err := resp.DecodeJSON(target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ============================================================
// PostgREST helpers for GET, POST, PATCH, DELETE
// ============================================================

func restHeader(prefer string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if prefer != "" {
		h.Set("Prefer", prefer)
	}
	return h
}

// doRequest GETs a PostgREST path. An empty array comes back as nil.
func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	body, err := c.send(ctx, http.MethodGet, "/rest/v1/"+path, nil, restHeader(""))
	if err != nil {
		return nil, err
	}
	if isEmpty(body) {
		return nil, nil
	}
	return body, nil
}

func (c *Client) doPost(ctx context.Context, table string, data any) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, http.MethodPost, "/rest/v1/"+table, bytes.NewReader(jsonBody), restHeader("return=representation"))
}

// doUpsert POSTs with merge-duplicates resolution on the primary key.
func (c *Client) doUpsert(ctx context.Context, table string, data any) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, http.MethodPost, "/rest/v1/"+table, bytes.NewReader(jsonBody),
		restHeader("resolution=merge-duplicates,return=representation"))
}

// doPatch updates every row matched by path and returns them. A filter
// that matches nothing yields nil.
func (c *Client) doPatch(ctx context.Context, path string, data any) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	body, err := c.send(ctx, http.MethodPatch, "/rest/v1/"+path, bytes.NewReader(jsonBody), restHeader("return=representation"))
	if err != nil {
		return nil, err
	}
	if isEmpty(body) {
		return nil, nil
	}
	return body, nil
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	_, err := c.send(ctx, http.MethodDelete, "/rest/v1/"+path, nil, restHeader("return=minimal"))
	return err
}

func isEmpty(body []byte) bool {
	b := bytes.TrimSpace(body)
	return len(b) == 0 || string(b) == "[]" || string(b) == "null"
}

// eq renders a PostgREST equality filter with an escaped value.
func eq(column, value string) string {
	return column + "=eq." + url.QueryEscape(value)
}

// page renders limit/offset for 1-based pages.
func page(p, size int) string {
	if p < 1 {
		p = 1
	}
	if size < 1 {
		size = 20
	}
	return "limit=" + strconv.Itoa(size) + "&offset=" + strconv.Itoa((p-1)*size)
}

func ts(t time.Time) string {
	return url.QueryEscape(t.UTC().Format(time.RFC3339Nano))
}

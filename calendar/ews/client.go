package ews

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/viant/calcatime/calendar"
	"github.com/viant/calcatime/logging"
	"github.com/viant/calcatime/timespan"
)

const endpointPath = "/EWS/Exchange.asmx"

// Authorizer decorates an EWS request with credentials.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req *http.Request) error

func (f AuthorizerFunc) Authorize(ctx context.Context, req *http.Request) error { return f(ctx, req) }

// BasicAuth authorizes with `domain\username` and password.
func BasicAuth(creds calendar.Credentials) Authorizer {
	return AuthorizerFunc(func(_ context.Context, req *http.Request) error {
		req.SetBasicAuth(creds.Login(), creds.Password)
		return nil
	})
}

// TokenSource yields OAuth bearer tokens.
type TokenSource func(ctx context.Context) (string, error)

// BearerAuth authorizes with a token obtained per request.
func BearerAuth(source TokenSource) Authorizer {
	return AuthorizerFunc(func(ctx context.Context, req *http.Request) error {
		tok, err := source(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		return nil
	})
}

// Client reads calendar items from an Exchange Web Services endpoint.
type Client struct {
	endpoint string
	auth     Authorizer
	// HTTPClient performs the SOAP calls; defaults to http.DefaultClient.
	HTTPClient *http.Client
	logger     *slog.Logger
}

// New creates a client for server, which is a host name or a full endpoint URL.
func New(server string, auth Authorizer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{endpoint: Endpoint(server), auth: auth, HTTPClient: http.DefaultClient, logger: logger}
}

// Endpoint returns the EWS URL of server.
func Endpoint(server string) string {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	if strings.HasSuffix(strings.ToLower(server), strings.ToLower(endpointPath)) {
		return server
	}
	return server + endpointPath
}

// Events returns calendar items in r. Exchange expands recurrences in a calendar view and
// caps each response, so the view is re-issued from the last returned start until it is complete.
func (c *Client) Events(ctx context.Context, r timespan.DateRange) ([]calendar.Event, error) {
	var out []calendar.Event
	seen := map[string]bool{}
	start := r.Start
	for {
		folder, err := c.findItems(ctx, start, r.End)
		if err != nil {
			return nil, err
		}
		last := start
		for _, item := range folder.Items {
			ev, err := toEvent(item)
			if err != nil {
				return nil, err
			}
			key := item.ItemID.ID
			if key == "" {
				key = ev.Title + "|" + ev.Start.String() + "|" + ev.End.String()
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ev)
			if ev.Start.After(last) {
				last = ev.Start
			}
		}
		if folder.IncludesLastItemInRange || len(folder.Items) < pageSize || !last.After(start) {
			break
		}
		start = last
	}
	c.logger.Debug("fetched ews events", slog.String(logging.KeyServer, c.endpoint), slog.Int(logging.KeyCount, len(out)))
	return out, nil
}

func (c *Client) findItems(ctx context.Context, start, end time.Time) (*rootFolder, error) {
	body, err := findItemRequest(start, end)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", calendar.ErrConnection, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	if cid := logging.CID(ctx); cid != "" {
		req.Header.Set("client-request-id", cid)
	}
	if c.auth != nil {
		if err := c.auth.Authorize(ctx, req); err != nil {
			return nil, err
		}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", calendar.ErrConnection, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s: %s", calendar.ErrAuthentication, c.endpoint, resp.Status)
	case resp.StatusCode >= 300 && resp.StatusCode != http.StatusInternalServerError:
		// EWS reports SOAP faults with status 500, which are decoded below.
		return nil, fmt.Errorf("%w: %s: %s", calendar.ErrConnection, c.endpoint, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", calendar.ErrConnection, err)
	}
	var env envelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: decode FindItem response (%s): %w", calendar.ErrConnection, resp.Status, err)
	}
	if f := env.Body.Fault; f != nil {
		return nil, fmt.Errorf("%w: soap fault %s: %s", calendar.ErrConnection, f.Code, f.String)
	}
	msgs := env.Body.FindItem.Messages
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: empty FindItem response", calendar.ErrConnection)
	}
	msg := msgs[0]
	if msg.ResponseClass != "Success" {
		if strings.HasPrefix(msg.ResponseCode, "ErrorAccessDenied") || msg.ResponseCode == "ErrorNonExistentMailbox" {
			return nil, fmt.Errorf("%w: %s: %s", calendar.ErrAuthentication, msg.ResponseCode, msg.MessageText)
		}
		return nil, fmt.Errorf("%w: %s: %s", calendar.ErrConnection, msg.ResponseCode, msg.MessageText)
	}
	return &msg.RootFolder, nil
}

func toEvent(item calendarItem) (calendar.Event, error) {
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(item.Start))
	if err != nil {
		return calendar.Event{}, fmt.Errorf("%w: item %q start: %w", calendar.ErrConnection, item.Subject, err)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(item.End))
	if err != nil {
		return calendar.Event{}, fmt.Errorf("%w: item %q end: %w", calendar.ErrConnection, item.Subject, err)
	}
	return calendar.Event{Title: item.Subject, Start: start, End: end, Categories: item.Categories}, nil
}

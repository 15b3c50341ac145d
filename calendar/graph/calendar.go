package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	models "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"

	"github.com/viant/calcatime/calendar"
	"github.com/viant/calcatime/logging"
	"github.com/viant/calcatime/timespan"
)

const (
	apiVersion = "v1.0"
	pageSize   = 100
	// graphTimeLayout parses Graph dateTime values; a trailing 7-digit fraction is accepted when parsing.
	graphTimeLayout = "2006-01-02T15:04:05"
)

// CalendarService reads the signed-in user's calendar view from Microsoft Graph.
type CalendarService struct {
	m      *Manager
	server string
	creds  calendar.Credentials
	// HTTPClient performs the REST calls; defaults to http.DefaultClient.
	HTTPClient *http.Client
	logger     *slog.Logger
}

func NewCalendarService(m *Manager, server string, creds calendar.Credentials) *CalendarService {
	if server == "" {
		server = calendar.DefaultGraphServer
	}
	return &CalendarService{m: m, server: server, creds: creds, HTTPClient: http.DefaultClient, logger: m.logger}
}

// Events returns the events of the calendar view over r, following @odata.nextLink paging.
func (s *CalendarService) Events(ctx context.Context, r timespan.DateRange) ([]calendar.Event, error) {
	scopes := DefaultScopes(s.host())
	if err := s.verify(ctx, scopes); err != nil {
		return nil, err
	}
	token, err := s.m.Token(ctx, s.creds, scopes)
	if err != nil {
		return nil, err
	}
	q := neturl.Values{}
	q.Set("startDateTime", r.Start.UTC().Format(time.RFC3339))
	q.Set("endDateTime", r.End.UTC().Format(time.RFC3339))
	q.Set("$select", "subject,start,end,categories")
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", fmt.Sprintf("%d", pageSize))
	url := s.baseURL() + "/me/calendarView?" + q.Encode()

	var out []calendar.Event
	for url != "" {
		page, err := s.fetch(ctx, url, token)
		if err != nil {
			return nil, err
		}
		for _, ev := range page.Value {
			event, err := toEvent(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, event)
		}
		url = page.NextLink
	}
	s.logger.Debug("fetched graph events", slog.String(logging.KeyServer, s.server), slog.Int(logging.KeyCount, len(out)))
	return out, nil
}

// verify checks the credentials against the Graph SDK before paging the calendar.
func (s *CalendarService) verify(ctx context.Context, scopes []string) error {
	client, err := s.m.Client(ctx, s.creds, scopes)
	if err != nil {
		return err
	}
	client.GetAdapter().SetBaseUrl(s.baseURL())
	me, err := client.Me().Get(ctx, nil)
	if err != nil {
		var odataErr *odataerrors.ODataError
		if errors.As(err, &odataErr) {
			switch odataErr.ResponseStatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return fmt.Errorf("%w: %w", calendar.ErrAuthentication, err)
			}
		}
		return classify(err)
	}
	s.logger.Debug("signed in to graph", slog.String(logging.KeyAccount, userName(me)))
	return nil
}

func (s *CalendarService) fetch(ctx context.Context, url, token string) (*calendarViewPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", calendar.ErrConnection, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)
	if cid := logging.CID(ctx); cid != "" {
		req.Header.Set("client-request-id", cid)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", calendar.ErrConnection, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, statusError(resp)
	}
	page := &calendarViewPage{}
	if err := json.NewDecoder(resp.Body).Decode(page); err != nil {
		return nil, fmt.Errorf("%w: decode calendar view: %w", calendar.ErrConnection, err)
	}
	return page, nil
}

func statusError(resp *http.Response) error {
	detail := resp.Status
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload errorPayload
	if json.Unmarshal(body, &payload) == nil && payload.Error.Message != "" {
		detail += ": " + payload.Error.Code + ": " + payload.Error.Message
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: list events: %s", calendar.ErrAuthentication, detail)
	}
	return fmt.Errorf("%w: list events: %s", calendar.ErrConnection, detail)
}

// host returns the resource host used for token scopes.
func (s *CalendarService) host() string {
	if u, err := neturl.Parse(s.server); err == nil && u.Host != "" {
		return u.Host
	}
	return s.server
}

func (s *CalendarService) baseURL() string {
	if strings.Contains(s.server, "://") {
		return strings.TrimRight(s.server, "/") + "/" + apiVersion
	}
	return "https://" + s.server + "/" + apiVersion
}

func toEvent(ev eventPayload) (calendar.Event, error) {
	start, err := parseDateTime(ev.Start)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("%w: event %q start: %w", calendar.ErrConnection, ev.Subject, err)
	}
	end, err := parseDateTime(ev.End)
	if err != nil {
		return calendar.Event{}, fmt.Errorf("%w: event %q end: %w", calendar.ErrConnection, ev.Subject, err)
	}
	return calendar.Event{Title: ev.Subject, Start: start, End: end, Categories: ev.Categories}, nil
}

func parseDateTime(dt dateTimeTimeZone) (time.Time, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(dt.TimeZone); tz != "" && !strings.EqualFold(tz, "UTC") {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	return time.ParseInLocation(graphTimeLayout, dt.DateTime, loc)
}

func userName(u models.Userable) string {
	if u == nil {
		return ""
	}
	if upn := ptrVal(u.GetUserPrincipalName()); upn != "" {
		return upn
	}
	return ptrVal(u.GetMail())
}

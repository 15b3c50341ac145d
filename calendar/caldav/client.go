package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"github.com/viant/calcatime/calendar"
	"github.com/viant/calcatime/logging"
	"github.com/viant/calcatime/timespan"
)

// Client reads VEVENTs from the calendars of a CalDAV account.
type Client struct {
	endpoint string
	path     string
	creds    calendar.Credentials
	// HTTPClient performs the DAV requests; its transport is wrapped with basic auth.
	HTTPClient *http.Client
	logger     *slog.Logger
	client     *caldav.Client
	transport  *basicAuthTransport
}

// New creates a client for a CalDAV URL; its path may name the calendar to read or any
// collection below the account root.
func New(rawURL string, creds calendar.Credentials, logger *slog.Logger) (*Client, error) {
	u, err := neturl.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: caldav url %q", calendar.ErrInvalidURI, rawURL)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &Client{
		endpoint:   u.Scheme + "://" + u.Host,
		path:       path,
		creds:      creds,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// connect establishes the CalDAV client.
func (c *Client) connect() (*caldav.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	base := c.HTTPClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.transport = &basicAuthTransport{username: c.creds.Login(), password: c.creds.Password, base: base}
	httpClient := &http.Client{Transport: c.transport, Timeout: c.HTTPClient.Timeout}
	client, err := caldav.NewClient(httpClient, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to CalDAV: %w", calendar.ErrConnection, err)
	}
	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests and remembers rejected credentials.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
	rejected bool
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	resp, err := t.base.RoundTrip(req)
	if err == nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		t.rejected = true
	}
	return resp, err
}

// Events returns the events of every event calendar in r, with recurrences expanded by the server.
func (c *Client) Events(ctx context.Context, r timespan.DateRange) ([]calendar.Event, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}
	paths, err := c.calendars(ctx, client)
	if err != nil {
		return nil, c.classify(err)
	}
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
			Expand:   &caldav.CalendarExpandRequest{Start: r.Start.UTC(), End: r.End.UTC()},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: r.Start.UTC(),
					End:   r.End.UTC(),
				},
			},
		},
	}
	var out []calendar.Event
	for _, path := range paths {
		objects, err := client.QueryCalendar(ctx, path, query)
		if err != nil {
			return nil, c.classify(fmt.Errorf("query calendar %s: %w", path, err))
		}
		for i := range objects {
			events, err := parseCalendarObject(&objects[i])
			if err != nil {
				c.logger.Debug("skipping calendar object", slog.String("path", objects[i].Path), logging.Err(err))
				continue
			}
			out = append(out, events...)
		}
	}
	c.logger.Debug("fetched caldav events", slog.String(logging.KeyServer, c.endpoint), slog.Int(logging.KeyCount, len(out)))
	return out, nil
}

// calendars resolves the event calendars under the configured path, falling back to discovery
// through the current user principal and calendar home set.
func (c *Client) calendars(ctx context.Context, client *caldav.Client) ([]string, error) {
	cals, err := client.FindCalendars(ctx, c.path)
	if err != nil || len(cals) == 0 {
		principal, perr := client.FindCurrentUserPrincipal(ctx)
		if perr != nil {
			return nil, fmt.Errorf("find principal: %w", perr)
		}
		homeSet, herr := client.FindCalendarHomeSet(ctx, principal)
		if herr != nil {
			return nil, fmt.Errorf("find home set: %w", herr)
		}
		if cals, err = client.FindCalendars(ctx, homeSet); err != nil {
			return nil, fmt.Errorf("find calendars: %w", err)
		}
	}
	var paths []string
	for _, cal := range cals {
		if supportsEvents(cal) {
			paths = append(paths, cal.Path)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no event calendar found under %s", calendar.ErrConnection, c.path)
	}
	return paths, nil
}

func supportsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if strings.EqualFold(comp, ical.CompEvent) {
			return true
		}
	}
	return false
}

// parseCalendarObject converts every VEVENT of a calendar object.
func parseCalendarObject(obj *caldav.CalendarObject) ([]calendar.Event, error) {
	if obj.Data == nil {
		return nil, fmt.Errorf("no data in calendar object")
	}
	var out []calendar.Event
	for _, comp := range obj.Data.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		ev, err := parseEvent(comp)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func parseEvent(comp *ical.Component) (calendar.Event, error) {
	var ev calendar.Event
	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		ev.Title = prop.Value
	}
	prop := comp.Props.Get(ical.PropDateTimeStart)
	if prop == nil {
		return ev, fmt.Errorf("event %q has no start", ev.Title)
	}
	start, err := prop.DateTime(time.UTC)
	if err != nil {
		return ev, fmt.Errorf("event %q start: %w", ev.Title, err)
	}
	allDay := prop.Params.Get(ical.ParamValue) == string(ical.ValueDate)
	ev.Start, ev.End = start, start
	switch {
	case comp.Props.Get(ical.PropDateTimeEnd) != nil:
		if ev.End, err = comp.Props.Get(ical.PropDateTimeEnd).DateTime(time.UTC); err != nil {
			return ev, fmt.Errorf("event %q end: %w", ev.Title, err)
		}
	case comp.Props.Get(ical.PropDuration) != nil:
		d, err := comp.Props.Get(ical.PropDuration).Duration()
		if err != nil {
			return ev, fmt.Errorf("event %q duration: %w", ev.Title, err)
		}
		ev.End = start.Add(d)
	case allDay:
		ev.End = start.AddDate(0, 0, 1)
	}
	for _, p := range comp.Props[ical.PropCategories] {
		list, err := p.TextList()
		if err != nil {
			continue
		}
		for _, category := range list {
			if category = strings.TrimSpace(category); category != "" {
				ev.Categories = append(ev.Categories, category)
			}
		}
	}
	return ev, nil
}

// classify maps DAV failures onto the calendar error taxonomy.
func (c *Client) classify(err error) error {
	if errors.Is(err, calendar.ErrConnection) || errors.Is(err, calendar.ErrAuthentication) {
		return err
	}
	if c.transport != nil && c.transport.rejected {
		return fmt.Errorf("%w: %w", calendar.ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %w", calendar.ErrConnection, err)
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	neturl "net/url"
	"strings"

	"github.com/viant/calcatime/calendar"
	"github.com/viant/calcatime/calendar/caldav"
	"github.com/viant/calcatime/calendar/ews"
	"github.com/viant/calcatime/calendar/graph"
)

// Provider describes how to reach one calendar.
type Provider struct {
	URI         calendar.URI
	Credentials calendar.Credentials
	ClientID    string
	TenantID    string
	Storage     string
	Logger      *slog.Logger
}

// ClientFactory creates the calendar client for a provider.
type ClientFactory func(ctx context.Context, p Provider) (calendar.Client, error)

// NewClient selects the calendar client by URI scheme.
func NewClient(_ context.Context, p Provider) (calendar.Client, error) {
	switch p.URI.Provider {
	case calendar.Exchange:
		return ews.New(p.URI.Server, ews.BasicAuth(p.Credentials), p.Logger), nil
	case calendar.Office365:
		mgr := graph.NewManager(p.ClientID, p.TenantID, graph.ExpandPath(p.Storage), p.Logger)
		scopes := graph.DefaultScopes(hostOf(p.URI.Server))
		creds := p.Credentials
		source := func(ctx context.Context) (string, error) {
			return mgr.Token(ctx, creds, scopes)
		}
		return ews.New(p.URI.Server, ews.BearerAuth(source), p.Logger), nil
	case calendar.Graph:
		mgr := graph.NewManager(p.ClientID, p.TenantID, graph.ExpandPath(p.Storage), p.Logger)
		return graph.NewCalendarService(mgr, p.URI.Server, p.Credentials), nil
	case calendar.CalDAV:
		client, err := caldav.New(p.URI.Server, p.Credentials, p.Logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("%w: unsupported provider %q", calendar.ErrInvalidURI, p.URI.Provider)
}

// hostOf strips scheme and path from a server given as a URL.
func hostOf(server string) string {
	if !strings.Contains(server, "://") {
		return strings.TrimRight(server, "/")
	}
	u, err := neturl.Parse(server)
	if err != nil || u.Host == "" {
		return server
	}
	return u.Host
}

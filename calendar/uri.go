package calendar

import (
	"fmt"
	"strings"
)

// Provider names a calendar backend.
type Provider string

const (
	Exchange  Provider = "exchange"
	Office365 Provider = "office365"
	Graph     Provider = "graph"
	CalDAV    Provider = "caldav"
)

const (
	DefaultOffice365Server = "outlook.office365.com"
	DefaultGraphServer     = "graph.microsoft.com"
)

// URI is a parsed `<provider>[:<server>]` connection string.
type URI struct {
	Provider Provider
	Server   string
}

func (u URI) String() string {
	return string(u.Provider) + ":" + u.Server
}

// ParseURI parses a calendar connection string such as `exchange:mail.example.com`.
func ParseURI(s string) (URI, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return URI{}, fmt.Errorf("%w: calendar uri is required", ErrInvalidURI)
	}
	name, server, _ := strings.Cut(s, ":")
	u := URI{Provider: Provider(strings.ToLower(name)), Server: strings.TrimSpace(server)}
	switch u.Provider {
	case Exchange, CalDAV:
		if u.Server == "" {
			return URI{}, fmt.Errorf("%w: %s requires a server", ErrInvalidURI, u.Provider)
		}
	case Office365:
		if u.Server == "" {
			u.Server = DefaultOffice365Server
		}
	case Graph:
		if u.Server == "" {
			u.Server = DefaultGraphServer
		}
	default:
		return URI{}, fmt.Errorf("%w: unknown provider %q", ErrInvalidURI, name)
	}
	return u, nil
}

// Credentials carries what the user passed on the command line.
type Credentials struct {
	Domain   string
	Username string
	Password string
}

// Login returns `domain\username` when a domain is set.
func (c Credentials) Login() string {
	if c.Domain == "" {
		return c.Username
	}
	return c.Domain + `\` + c.Username
}

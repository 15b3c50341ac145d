package app

import (
	"os"
	"path/filepath"
	"time"

	"github.com/viant/calcatime/aggregate"
	"github.com/viant/calcatime/render"
)

// Version is reported by --version.
const Version = "0.1"

const usage = `-c <calendar_uri> [-d <domain>] -u <username> -p <password> <timespan>... [--by <event_attr>] [--include-zero] [--json] [--debug]`

const longDescription = `Calculates total time from calendar events and groups it by an event attribute.

Calendar providers:
  exchange:<server>         Microsoft Exchange (EWS, basic auth as domain\username)
  office365[:<server>]      Office365 EWS with Azure AD sign-in (default outlook.office365.com)
  graph[:<server>]          Microsoft Graph calendar view (default graph.microsoft.com)
  caldav:<url>              CalDAV calendar or account URL

Timespan options:
  today | yesterday | week | month | year
  monday|mon tuesday|tue wednesday|wed thursday|thu friday|fri saturday|sat sunday|sun
  last (can be used multiple times e.g. last last week)

Event grouping attributes:
  category[:<regex_pattern>]
  title[:<regex_pattern>]`

// Options defines CLI flags for calcatime.
type Options struct {
	Calendar    string `short:"c" value-name:"calendar_uri" description:"Calendar provider:server uri"`
	Domain      string `short:"d" value-name:"domain" description:"Domain name (Azure AD tenant for office365/graph)"`
	Username    string `short:"u" value-name:"username" description:"User name"`
	Password    string `short:"p" value-name:"password" description:"Password"`
	By          string `long:"by" value-name:"event_attr" description:"Group total times by given event attribute" default:"category"`
	IncludeZero bool   `long:"include-zero" description:"Include zero totals in output"`
	JSON        bool   `long:"json" description:"Output data to json"`
	CSV         bool   `long:"csv" description:"Output data to csv (default)"`
	Debug       bool   `long:"debug" description:"Log requests and print the full error chain"`
	Version     bool   `short:"V" long:"version" description:"Show command version"`

	ClientID  string        `long:"client-id" value-name:"id" description:"Azure AD application (client) ID for office365/graph (env CALCATIME_CLIENT_ID)"`
	TenantID  string        `long:"tenant-id" value-name:"id" description:"Azure AD tenant; defaults to -d, then 'organizations' (env CALCATIME_TENANT_ID)"`
	AzureRef  string        `long:"azure-ref" value-name:"resource" description:"scy EncodedResource for an Azure app registration (e.g. ~/.secret/azure.json|blowfish://default)"`
	SecretRef string        `long:"secret" value-name:"resource" description:"scy EncodedResource holding basic credentials; fills -u/-p"`
	Storage   string        `long:"storage" value-name:"dir" description:"Directory or afs URL for Azure AD auth records (env CALCATIME_STORAGE)"`
	Timeout   time.Duration `long:"timeout" value-name:"duration" description:"Calendar request timeout" default:"60s"`

	Args struct {
		Timespan []string `positional-arg-name:"timespan"`
	} `positional-args:"yes"`
}

// Format returns the selected output format.
func (o *Options) Format() render.Format {
	if o.JSON && !o.CSV {
		return render.JSON
	}
	return render.CSV
}

// GroupSpec parses --by.
func (o *Options) GroupSpec() (aggregate.GroupSpec, error) {
	return aggregate.ParseGroupSpec(o.By)
}

// applyEnv fills unset options from the environment and defaults.
func (o *Options) applyEnv() {
	if o.ClientID == "" {
		o.ClientID = envOr("CALCATIME_CLIENT_ID", "")
	}
	if o.TenantID == "" {
		o.TenantID = envOr("CALCATIME_TENANT_ID", o.Domain)
	}
	if o.Storage == "" {
		o.Storage = envOr("CALCATIME_STORAGE", defaultStorageDir())
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func defaultStorageDir() string {
	dir, _ := os.UserConfigDir()
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "calcatime")
}

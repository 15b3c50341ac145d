package caldav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/calcatime/calendar"
	"github.com/viant/calcatime/timespan"
)

const ics = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//calcatime//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:1@test\r\n" +
	"DTSTAMP:20190701T000000Z\r\n" +
	"SUMMARY:Write docs\r\n" +
	"DTSTART:20190701T000000Z\r\n" +
	"DTEND:20190701T030000Z\r\n" +
	"CATEGORIES:Docs,Blue\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:2@test\r\n" +
	"DTSTAMP:20190701T000000Z\r\n" +
	"SUMMARY:Review\r\n" +
	"DTSTART:20190702T090000Z\r\n" +
	"DURATION:PT1H30M\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:3@test\r\n" +
	"DTSTAMP:20190701T000000Z\r\n" +
	"SUMMARY:Holiday\r\n" +
	"DTSTART;VALUE=DATE:20190704\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

var week = timespan.DateRange{
	Start: time.Date(2019, time.July, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2019, time.July, 8, 0, 0, 0, 0, time.UTC),
}

func decode(t *testing.T, data string) *ical.Calendar {
	t.Helper()
	cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
	require.NoError(t, err)
	return cal
}

func TestParseCalendarObject(t *testing.T) {
	events, err := parseCalendarObject(&caldav.CalendarObject{Path: "/cal/1.ics", Data: decode(t, ics)})
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, calendar.Event{
		Title:      "Write docs",
		Start:      time.Date(2019, time.July, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2019, time.July, 1, 3, 0, 0, 0, time.UTC),
		Categories: []string{"Docs", "Blue"},
	}, events[0])
	assert.InDelta(t, 1.5, events[1].Hours(), 1e-9, "end derived from DURATION")
	assert.Empty(t, events[1].Categories)
	assert.InDelta(t, 24.0, events[2].Hours(), 1e-9, "all-day event lasts one day")
}

func TestParseCalendarObject_NoData(t *testing.T) {
	_, err := parseCalendarObject(&caldav.CalendarObject{Path: "/cal/x.ics"})
	assert.Error(t, err)
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"dav.example.com/cal", "::"} {
		_, err := New(raw, calendar.Credentials{}, nil)
		assert.ErrorIs(t, err, calendar.ErrInvalidURI, raw)
	}
}

func TestEvents_RejectedCredentials(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "jdoe", user)
		assert.Equal(t, "wrong", pass)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	client, err := New(ts.URL+"/calendars/jdoe/", calendar.Credentials{Username: "jdoe", Password: "wrong"}, nil)
	require.NoError(t, err)
	_, err = client.Events(context.Background(), week)
	assert.ErrorIs(t, err, calendar.ErrAuthentication)
}

func TestSupportsEvents(t *testing.T) {
	assert.True(t, supportsEvents(caldav.Calendar{}))
	assert.True(t, supportsEvents(caldav.Calendar{SupportedComponentSet: []string{"VTODO", "VEVENT"}}))
	assert.False(t, supportsEvents(caldav.Calendar{SupportedComponentSet: []string{"VTODO"}}))
}

// memBackend serves one principal with a work calendar and a task list.
type memBackend struct {
	mu        sync.Mutex
	calendars []caldav.Calendar
	objects   map[string][]caldav.CalendarObject
	queried   []string
	queries   []caldav.CalendarQuery
}

func newMemBackend(t *testing.T) *memBackend {
	return &memBackend{
		calendars: []caldav.Calendar{
			{Path: "/jdoe/calendars/work/", Name: "Work", SupportedComponentSet: []string{ical.CompEvent}},
			{Path: "/jdoe/calendars/tasks/", Name: "Tasks", SupportedComponentSet: []string{ical.CompToDo}},
		},
		objects: map[string][]caldav.CalendarObject{
			"/jdoe/calendars/work/": {{Path: "/jdoe/calendars/work/1.ics", Data: decode(t, ics)}},
		},
	}
}

func (b *memBackend) CurrentUserPrincipal(context.Context) (string, error) { return "/jdoe/", nil }

func (b *memBackend) CalendarHomeSetPath(context.Context) (string, error) {
	return "/jdoe/calendars/", nil
}

func (b *memBackend) CreateCalendar(context.Context, *caldav.Calendar) error { return nil }

func (b *memBackend) ListCalendars(context.Context) ([]caldav.Calendar, error) {
	return b.calendars, nil
}

func (b *memBackend) GetCalendar(_ context.Context, path string) (*caldav.Calendar, error) {
	for i := range b.calendars {
		if b.calendars[i].Path == path {
			return &b.calendars[i], nil
		}
	}
	return nil, webdav.NewHTTPError(http.StatusNotFound, fmt.Errorf("no calendar at %s", path))
}

func (b *memBackend) GetCalendarObject(_ context.Context, path string, _ *caldav.CalendarCompRequest) (*caldav.CalendarObject, error) {
	for _, objs := range b.objects {
		for i := range objs {
			if objs[i].Path == path {
				return &objs[i], nil
			}
		}
	}
	return nil, webdav.NewHTTPError(http.StatusNotFound, fmt.Errorf("no object at %s", path))
}

func (b *memBackend) ListCalendarObjects(_ context.Context, path string, _ *caldav.CalendarCompRequest) ([]caldav.CalendarObject, error) {
	return b.objects[path], nil
}

func (b *memBackend) QueryCalendarObjects(_ context.Context, path string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error) {
	b.mu.Lock()
	b.queried = append(b.queried, path)
	b.queries = append(b.queries, *query)
	b.mu.Unlock()
	return b.objects[path], nil
}

func (b *memBackend) PutCalendarObject(context.Context, string, *ical.Calendar, *caldav.PutCalendarObjectOptions) (*caldav.CalendarObject, error) {
	return nil, nil
}

func (b *memBackend) DeleteCalendarObject(context.Context, string) error { return nil }

// serveCalDAV starts a CalDAV server over backend and records REPORT bodies.
func serveCalDAV(t *testing.T, backend *memBackend) (string, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var reports []string
	handler := &caldav.Handler{Backend: backend}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "REPORT" {
			body, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
			mu.Lock()
			reports = append(reports, string(body))
			mu.Unlock()
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts.URL, &reports
}

func assertWeekEvents(t *testing.T, events []calendar.Event) {
	t.Helper()
	require.Len(t, events, 3)
	assert.Equal(t, "Write docs", events[0].Title)
	assert.Equal(t, []string{"Docs", "Blue"}, events[0].Categories)
	assert.Equal(t, "Review", events[1].Title)
	assert.InDelta(t, 1.5, events[1].Hours(), 1e-9)
	assert.Equal(t, "Holiday", events[2].Title)
	assert.InDelta(t, 24.0, events[2].Hours(), 1e-9)
}

var expandRange = regexp.MustCompile(`expand[^>]*start="20190701T000000Z"[^>]*end="20190708T000000Z"`)

func TestEvents_DiscoversEventCalendars(t *testing.T) {
	backend := newMemBackend(t)
	url, reports := serveCalDAV(t, backend)
	client, err := New(url, calendar.Credentials{Username: "jdoe", Password: "pw"}, nil)
	require.NoError(t, err)

	events, err := client.Events(context.Background(), week)
	require.NoError(t, err)
	assertWeekEvents(t, events)

	assert.Equal(t, []string{"/jdoe/calendars/work/"}, backend.queried, "the task list is not queried")
	require.Len(t, backend.queries, 1)
	filter := backend.queries[0].CompFilter
	assert.Equal(t, "VCALENDAR", filter.Name)
	require.Len(t, filter.Comps, 1)
	assert.Equal(t, ical.CompEvent, filter.Comps[0].Name)
	assert.True(t, week.Start.Equal(filter.Comps[0].Start))
	assert.True(t, week.End.Equal(filter.Comps[0].End))
	require.Len(t, *reports, 1)
	assert.Regexp(t, expandRange, (*reports)[0])
}

func TestEvents_CalendarURL(t *testing.T) {
	backend := newMemBackend(t)
	url, _ := serveCalDAV(t, backend)
	client, err := New(url+"/jdoe/calendars/work/", calendar.Credentials{Username: "jdoe", Password: "pw"}, nil)
	require.NoError(t, err)

	events, err := client.Events(context.Background(), week)
	require.NoError(t, err)
	assertWeekEvents(t, events)
	assert.Equal(t, []string{"/jdoe/calendars/work/"}, backend.queried)
}

func TestEvents_NoEventCalendar(t *testing.T) {
	backend := newMemBackend(t)
	backend.calendars = backend.calendars[1:]
	url, _ := serveCalDAV(t, backend)
	client, err := New(url, calendar.Credentials{Username: "jdoe", Password: "pw"}, nil)
	require.NoError(t, err)

	_, err = client.Events(context.Background(), week)
	assert.ErrorIs(t, err, calendar.ErrConnection)
	assert.Empty(t, backend.queried)
}

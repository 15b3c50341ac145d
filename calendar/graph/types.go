package graph

// calendarViewPage is one page of GET /me/calendarView.
type calendarViewPage struct {
	Value    []eventPayload `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type eventPayload struct {
	Subject    string           `json:"subject"`
	Start      dateTimeTimeZone `json:"start"`
	End        dateTimeTimeZone `json:"end"`
	Categories []string         `json:"categories"`
}

type dateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

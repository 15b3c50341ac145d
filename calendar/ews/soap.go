package ews

import (
	"bytes"
	"encoding/xml"
	"text/template"
	"time"
)

const (
	serverVersion = "Exchange2013"
	pageSize      = 500
)

var findItemTemplate = template.Must(template.New("FindItem").Parse(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"
               xmlns:t="http://schemas.microsoft.com/exchange/services/2006/types"
               xmlns:m="http://schemas.microsoft.com/exchange/services/2006/messages">
  <soap:Header>
    <t:RequestServerVersion Version="{{.Version}}"/>
  </soap:Header>
  <soap:Body>
    <m:FindItem Traversal="Shallow">
      <m:ItemShape>
        <t:BaseShape>IdOnly</t:BaseShape>
        <t:AdditionalProperties>
          <t:FieldURI FieldURI="item:Subject"/>
          <t:FieldURI FieldURI="item:Categories"/>
          <t:FieldURI FieldURI="calendar:Start"/>
          <t:FieldURI FieldURI="calendar:End"/>
        </t:AdditionalProperties>
      </m:ItemShape>
      <m:CalendarView MaxEntriesReturned="{{.PageSize}}" StartDate="{{.Start}}" EndDate="{{.End}}"/>
      <m:ParentFolderIds>
        <t:DistinguishedFolderId Id="calendar"/>
      </m:ParentFolderIds>
    </m:FindItem>
  </soap:Body>
</soap:Envelope>
`))

type findItemParams struct {
	Version  string
	PageSize int
	Start    string
	End      string
}

func findItemRequest(start, end time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := findItemTemplate.Execute(&buf, findItemParams{
		Version:  serverVersion,
		PageSize: pageSize,
		Start:    start.UTC().Format(time.RFC3339),
		End:      end.UTC().Format(time.RFC3339),
	})
	return buf.Bytes(), err
}

// envelope decodes a FindItem response; element names match regardless of namespace prefix.
type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault    *fault `xml:"Fault"`
		FindItem struct {
			Messages []responseMessage `xml:"ResponseMessages>FindItemResponseMessage"`
		} `xml:"FindItemResponse"`
	} `xml:"Body"`
}

type fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type responseMessage struct {
	ResponseClass string     `xml:"ResponseClass,attr"`
	ResponseCode  string     `xml:"ResponseCode"`
	MessageText   string     `xml:"MessageText"`
	RootFolder    rootFolder `xml:"RootFolder"`
}

type rootFolder struct {
	TotalItemsInView        int            `xml:"TotalItemsInView,attr"`
	IncludesLastItemInRange bool           `xml:"IncludesLastItemInRange,attr"`
	Items                   []calendarItem `xml:"Items>CalendarItem"`
}

type calendarItem struct {
	ItemID     itemID   `xml:"ItemId"`
	Subject    string   `xml:"Subject"`
	Start      string   `xml:"Start"`
	End        string   `xml:"End"`
	Categories []string `xml:"Categories>String"`
}

type itemID struct {
	ID string `xml:"Id,attr"`
}

package rss

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

type xmlRSS struct {
	XMLName      xml.Name   `xml:"rss"`
	Version      string     `xml:"version,attr"`
	NSOpenSearch string     `xml:"xmlns:opensearch,attr"`
	NSArchive    string     `xml:"xmlns:archive,attr"`
	Channel      xmlChannel `xml:"channel"`
}

type xmlChannel struct {
	Title        string       `xml:"title"`
	Description  string       `xml:"description"`
	Link         string       `xml:"link"`
	TotalResults int64        `xml:"opensearch:totalResults"`
	StartIndex   int          `xml:"opensearch:startIndex"`
	ItemsPerPage int          `xml:"opensearch:itemsPerPage"`
	Query        string       `xml:"archive:query"`
	Indexes      []string     `xml:"archive:index"`
	URLParams    xmlURLParams `xml:"archive:urlParams"`
	Items        []xmlItem    `xml:"item"`
	ResponseTime string       `xml:"archive:responseTime"`
}

type xmlURLParams struct {
	Params []xmlParam `xml:"archive:param"`
}

type xmlParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description,omitempty"`
	DocID       string   `xml:"archive:docId"`
	Score       string   `xml:"archive:score"`
	Site        string   `xml:"archive:site"`
	Length      string   `xml:"archive:length,omitempty"`
	Type        string   `xml:"archive:type,omitempty"`
	Boost       string   `xml:"archive:boost,omitempty"`
	Collection  string   `xml:"archive:collection,omitempty"`
	Index       string   `xml:"archive:index,omitempty"`
	Dates       []string `xml:"date"`
}

// Encode writes f as an RSS result list. The channel title and
// description both carry the query; responseTime is in seconds.
func Encode(w io.Writer, f *Feed) error {
	doc := xmlRSS{
		Version:      "2.0",
		NSOpenSearch: NSOpenSearch,
		NSArchive:    NSArchive,
		Channel: xmlChannel{
			Title:        f.Query,
			Description:  f.Query,
			TotalResults: f.TotalResults,
			StartIndex:   f.StartIndex,
			ItemsPerPage: f.ItemsPerPage,
			Query:        f.Query,
			Indexes:      f.IndexNames,
			Items:        make([]xmlItem, 0, len(f.Items)),
			ResponseTime: strconv.FormatFloat(float64(f.ResponseTime.Milliseconds())/1000, 'f', -1, 64),
		},
	}
	for _, p := range f.Params {
		doc.Channel.URLParams.Params = append(doc.Channel.URLParams.Params, xmlParam(p))
	}
	for i := range f.Items {
		it := &f.Items[i]
		doc.Channel.Items = append(doc.Channel.Items, xmlItem{
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
			DocID:       it.DocID,
			Score:       formatScore(it.Score),
			Site:        it.Site,
			Length:      it.Length,
			Type:        it.Type,
			Boost:       it.Boost,
			Collection:  it.Collection,
			Index:       it.Index,
			Dates:       it.Dates,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode rss: %w", err)
	}
	return nil
}

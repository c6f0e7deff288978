package pycurl

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xmlquery"
)

// CSS runs a CSS selector against the response body (goquery), returning
// each matched node as a *goquery.Selection. This is the "opaque HTML/XPath/CSS
// selection" collaborator's CSS entry point, kept minimal since selection
// itself is explicitly out of scope — only enough surface to support the
// supplemented FormRequest helper (formrequest.go in package spider).
func (r *Response) CSS(selector string) ([]*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(r.Text))
	if err != nil {
		return nil, fmt.Errorf("pycurl: parse html for css select: %w", err)
	}
	sel := doc.Find(selector)
	out := make([]*goquery.Selection, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) { out[i] = s })
	return out, nil
}

// XPath evaluates an XPath expression against the response body, dispatched
// by content type: HTML documents use htmlquery, XML/"+xml" documents use
// xmlquery — mirroring the teacher's own handleOnHTML/handleOnXML content-
// type dispatch.
func (r *Response) XPath(expr string) ([]string, error) {
	if strings.Contains(r.ContentType, "xml") {
		doc, err := xmlquery.Parse(strings.NewReader(r.Text))
		if err != nil {
			return nil, fmt.Errorf("pycurl: parse xml for xpath: %w", err)
		}
		nodes, err := xmlquery.QueryAll(doc, expr)
		if err != nil {
			return nil, fmt.Errorf("pycurl: xpath: %w", err)
		}
		out := make([]string, len(nodes))
		for i, n := range nodes {
			out[i] = n.OutputXML(true)
		}
		return out, nil
	}

	doc, err := htmlquery.Parse(strings.NewReader(r.Text))
	if err != nil {
		return nil, fmt.Errorf("pycurl: parse html for xpath: %w", err)
	}
	nodes, err := htmlquery.QueryAll(doc, expr)
	if err != nil {
		return nil, fmt.Errorf("pycurl: xpath: %w", err)
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = htmlquery.OutputHTML(n, true)
	}
	return out, nil
}

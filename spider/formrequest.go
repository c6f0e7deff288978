package spider

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NewFormRequest builds a POST Request with a form-urlencoded body from
// values, a convenience constructor supplementing the dropped submit_form
// helper (original_source/pycurl_session/response.py's submit_form), ported
// here as a plain constructor rather than a Response method since it needs
// no page to extract from.
func NewFormRequest(rawURL string, values url.Values, cb Callback) (*Request, error) {
	req, err := NewRequest(rawURL, cb)
	if err != nil {
		return nil, err
	}
	req.Method = "POST"
	req.Body = FormBody{Values: values}
	return req, nil
}

// FormRequestFromResponse extracts the first form matching formSelector (an
// empty selector means "form") out of resp, resolves its action against
// resp.URL, collects its field defaults, overlays overrides, and returns a
// Request ready to submit — the Go realization of submit_form/_get_form_data
// from original_source/pycurl_session/response.py, built on the CSS
// collaborator (pycurl/select.go) instead of the source's lxml form walker.
func FormRequestFromResponse(resp *Response, formSelector string, overrides url.Values, cb Callback) (*Request, error) {
	if formSelector == "" {
		formSelector = "form"
	}
	matches, err := resp.CSS(formSelector)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("spider: no form matched selector %q", formSelector)
	}
	form := matches[0]

	action, _ := form.Attr("action")
	actionURL, err := resp.URL.Parse(action)
	if err != nil {
		return nil, fmt.Errorf("spider: resolve form action: %w", err)
	}

	method := strings.ToUpper(form.AttrOr("method", "GET"))

	values := formFieldDefaults(form)
	for k, vs := range overrides {
		values[k] = vs
	}

	if method == "GET" {
		req, err := NewRequest(actionURL.String(), cb)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		for k, vs := range values {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
		return req, nil
	}

	return NewFormRequest(actionURL.String(), values, cb)
}

// formFieldDefaults collects name/value pairs from input, select, and
// textarea descendants of form, skipping unnamed and disabled fields and
// unchecked checkboxes/radios — the field-collection rules from
// _get_form_data.
func formFieldDefaults(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := field.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(field) {
		case "input":
			typ := strings.ToLower(field.AttrOr("type", "text"))
			if typ == "checkbox" || typ == "radio" {
				if _, checked := field.Attr("checked"); !checked {
					return
				}
			}
			if typ == "submit" || typ == "button" || typ == "reset" || typ == "file" {
				return
			}
			values.Add(name, field.AttrOr("value", ""))
		case "textarea":
			values.Add(name, field.Text())
		case "select":
			field.Find("option[selected]").Each(func(_ int, opt *goquery.Selection) {
				values.Add(name, opt.AttrOr("value", opt.Text()))
			})
		}
	})
	return values
}

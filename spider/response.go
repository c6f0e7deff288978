package spider

import (
	"github.com/glamas/pycurl-session/pycurl"
)

// Response is the spider-level wrapper around pycurl.Response, carrying the
// Meta copied from the triggering Request (unchanged in meaning from the
// Response data model entry: "meta (copied from triggering request)").
type Response struct {
	*pycurl.Response
	Meta      map[string]any
	OriginURL string
}

// Command examplecrawl demonstrates a minimal crawl: seed a page, follow
// every link found on each fetched page until the 30-second deadline, and
// print the titles found along the way.
package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/glamas/pycurl-session/pycurl"
	"github.com/glamas/pycurl-session/spider"
)

type titleItem struct {
	URL   string
	Title string
}

type printPipeline struct{}

func (printPipeline) ProcessItem(item any, sp spider.Spider) (any, error) {
	if t, ok := item.(titleItem); ok {
		fmt.Printf("%s\t%s\n", t.URL, t.Title)
	}
	return item, nil
}

type pageSpider struct {
	spider.BaseSpider
}

func (s *pageSpider) Parse(ctx *spider.FetchContext, resp *spider.Response) spider.GenStep {
	title := extractTitle(resp.Text)
	item := titleItem{URL: resp.URL.String(), Title: title}

	var links []string
	if anchors, err := resp.CSS("a"); err == nil {
		for _, a := range anchors {
			if href, ok := a.Attr("href"); ok {
				links = append(links, href)
			}
		}
	}

	i := 0
	done := false
	return func() (spider.YieldKind, *spider.Request, any, bool) {
		if !done {
			done = true
			return spider.YieldItem, nil, item, i < len(links)
		}
		if i >= len(links) {
			return spider.YieldNone, nil, nil, false
		}
		href := links[i]
		i++
		next, err := resp.URL.Parse(href)
		if err != nil {
			return spider.YieldNone, nil, nil, i < len(links)
		}
		req, err := spider.NewRequest(next.String(), nil)
		if err != nil {
			return spider.YieldNone, nil, nil, i < len(links)
		}
		return spider.YieldRequest, req, nil, i < len(links)
	}
}

func extractTitle(html string) string {
	lower := strings.ToLower(html)
	start := strings.Index(lower, "<title>")
	end := strings.Index(lower, "</title>")
	if start < 0 || end < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(html[start+len("<title>") : end])
}

func main() {
	settings := spider.DefaultSettings()
	settings.ConcurrentRequests = 4
	settings.DownloadDelay = 200 * time.Millisecond
	settings.RobotsTxtObey = true

	session := pycurl.NewSession()
	sched := spider.NewScheduler(settings, session)
	sched.AddPipeline(printPipeline{})

	sp := &pageSpider{spider.BaseSpider{
		SpiderName: "examplecrawl",
		Seeds:      []string{"https://example.com/"},
	}}
	sched.RegisterSpider(sp)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := sched.Run(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("requests=%d responses=%d errors=%d elapsed=%s\n",
		stats.RequestCount, stats.ResponseCount, stats.ErrorCount, stats.Elapsed)
}

// Package sitesearch is an embeddable client for a federation of OpenSearch
// nodes: it sends one query to every remote, merges their result lists and
// collapses them to a few hits per site.
//
// # Usage
//
//	client, _ := sitesearch.New(ctx,
//	    sitesearch.WithRemotes(
//	        "http://a.example/opensearch?q={searchTerms}&n={count}&h={hitsPerSite}",
//	        "http://b.example/opensearch?q={searchTerms}&n={count}&h={hitsPerSite}",
//	    ),
//	    sitesearch.WithTimeout(2*time.Second),
//	)
//	page, _ := client.Search(ctx, "war and peace",
//	    sitesearch.PageSize(20),
//	    sitesearch.HitsPerSite(2),
//	)
//	for _, h := range page.Hits {
//	    fmt.Println(h.Score, h.Site, h.Title)
//	}
//
// A remote that fails or misses the deadline drops out of the page; see
// Page.Nodes and Page.Err. Search itself only fails on invalid parameters or
// when ctx is cancelled.
package sitesearch

// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package websub

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/peterhellberg/link"
	"golang.org/x/net/html"
)

var (
	// ErrNoHub indicates that discovery completed but neither the Link header nor
	// the document body advertised a hub for the topic.
	ErrNoHub = errors.New("no hub link found")
)

const (
	relHub  = "hub"
	relSelf = "self"
)

// Discover fetches the given URL and resolves the hub endpoint and canonical topic
// for it.  The Link response header takes precedence; when it yields no hub, HTML
// and Atom documents are searched for <link rel="hub"> elements.  The topic is the
// rel="self" link when advertised, and the original URL otherwise.
//
// Discover is a pure lookup: it never mutates subscription state.
func (s *Subscriber) Discover(ctx context.Context, topicURL string) (hub, topic string, err error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, topicURL, nil)
	if err != nil {
		return "", "", err
	}

	response, err := s.client.Do(request)
	if err != nil {
		s.measures.DiscoveryFailed.Add(1.0)
		return "", "", err
	}

	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode > 299 {
		s.measures.DiscoveryFailed.Add(1.0)
		return "", "", fmt.Errorf("discovery GET %s returned status %d", topicURL, response.StatusCode)
	}

	topic = topicURL
	group := link.ParseResponse(response)
	if l, ok := group[relHub]; ok && len(l.URI) > 0 {
		if self, ok := group[relSelf]; ok && len(self.URI) > 0 {
			topic = self.URI
		}

		return l.URI, topic, nil
	}

	var self string
	switch mediaType(response.Header.Get("Content-Type")) {
	case "text/html", "application/xhtml+xml":
		hub, self = htmlLinks(response.Body)

	case "application/atom+xml", "application/rss+xml", "application/xml", "text/xml":
		hub, self = atomLinks(response.Body)
	}

	if len(hub) == 0 {
		s.measures.DiscoveryFailed.Add(1.0)
		return "", "", fmt.Errorf("%w at %s", ErrNoHub, topicURL)
	}

	if len(self) > 0 {
		topic = self
	}

	return hub, topic, nil
}

// mediaType extracts the bare media type from a Content-Type header value,
// tolerating malformed values by falling back to the raw header.
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}

	return mt
}

// htmlLinks tokenizes an HTML document and extracts the first rel="hub" and
// rel="self" <link> targets.  Tokenizing avoids building a full document tree
// for what is a simple attribute scan.
func htmlLinks(body io.Reader) (hub, self string) {
	tokenizer := html.NewTokenizer(body)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return

		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if strings.ToLower(token.Data) != "link" {
				continue
			}

			var rel, href string
			for _, attr := range token.Attr {
				switch strings.ToLower(attr.Key) {
				case "rel":
					rel = attr.Val
				case "href":
					href = attr.Val
				}
			}

			hub, self = applyRel(hub, self, rel, href)
			if len(hub) > 0 && len(self) > 0 {
				return
			}
		}
	}
}

// atomLinks decodes an Atom (or RSS-with-atom-namespace) document and extracts
// the first rel="hub" and rel="self" <link> targets.
func atomLinks(body io.Reader) (hub, self string) {
	decoder := xml.NewDecoder(body)
	decoder.Strict = false

	for {
		token, err := decoder.Token()
		if err != nil {
			return
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "link" {
			continue
		}

		var rel, href string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "rel":
				rel = attr.Value
			case "href":
				href = attr.Value
			}
		}

		hub, self = applyRel(hub, self, rel, href)
		if len(hub) > 0 && len(self) > 0 {
			return
		}
	}
}

// applyRel folds one link element into the (hub, self) pair.  The rel attribute
// is a whitespace-separated list, and the first match for each relation wins.
func applyRel(hub, self, rel, href string) (string, string) {
	if len(href) == 0 {
		return hub, self
	}

	for _, r := range strings.Fields(strings.ToLower(rel)) {
		switch {
		case r == relHub && len(hub) == 0:
			hub = href
		case r == relSelf && len(self) == 0:
			self = href
		}
	}

	return hub, self
}

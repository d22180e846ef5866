package meli

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
)

const publicUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// publicGet issues an unauthenticated GET with a browser identity. The public
// surface serves some requests only to browser-looking clients, and answers
// blocked ones with an HTML interstitial instead of JSON. Fail-soft like
// getJSON: any failure is absence.
func (c *Client) publicGet(ctx context.Context, rawURL string, into interface{}) bool {
	c.publicLimiter.Wait()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	setBrowserHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		log.Printf("meli: public fetch %s returned %d", rawURL, resp.StatusCode)
		return false
	}

	reader, err := contentReader(resp)
	if err != nil {
		return false
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return false
	}

	if err := json.Unmarshal(body, into); err != nil {
		logBlockedPayload(rawURL, body)
		return false
	}
	return true
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", publicUserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "es-AR,es;q=0.9,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
}

// contentReader unwraps the negotiated content encoding.
func contentReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "deflate":
		// Officially zlib-wrapped, but some servers send raw flate. The
		// zlib header starts with 0x78.
		buf := bufio.NewReader(resp.Body)
		if head, err := buf.Peek(2); err == nil && head[0] == 0x78 {
			return zlib.NewReader(buf)
		}
		return flate.NewReader(buf), nil
	default:
		return resp.Body, nil
	}
}

// logBlockedPayload records what the upstream sent instead of JSON. Block
// pages are HTML; their title is the only useful diagnostic in them.
func logBlockedPayload(rawURL string, body []byte) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		log.Printf("meli: empty payload from %s", rawURL)
		return
	}
	if trimmed[0] == '<' {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed)); err == nil {
			if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
				log.Printf("meli: blocked at %s: %q", rawURL, title)
				return
			}
		}
	}
	log.Printf("meli: malformed payload from %s (%d bytes)", rawURL, len(trimmed))
}

// decodeJSON decodes a JSON body, draining the reader so connections can be
// reused.
func decodeJSON(r io.Reader, into interface{}) error {
	dec := json.NewDecoder(r)
	if err := dec.Decode(into); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, r)
	return nil
}

package tui

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/pb33f/harhar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detailEntry() *harhar.Entry {
	return &harhar.Entry{
		Start: "2024-05-01T10:00:00.000Z",
		Time:  125.5,
		Request: harhar.Request{
			Method:      "POST",
			URL:         "https://example.com/login?next=/home",
			HTTPVersion: "http/1.1",
			Headers:     []harhar.NameValuePair{{Name: "Content-Type", Value: "application/x-www-form-urlencoded"}},
			QueryParams: []harhar.NameValuePair{{Name: "next", Value: "/home"}},
			Body: harhar.BodyType{
				MIMEType: "application/x-www-form-urlencoded",
				Params:   []harhar.PostNameValuePair{{Name: "user", Value: "ada"}},
				Content:  "user=ada",
			},
		},
		Response: harhar.Response{
			StatusCode:  302,
			StatusText:  "Found",
			HTTPVersion: "http/1.1",
			Headers:     []harhar.NameValuePair{{Name: "Location", Value: "/home"}},
			Body: harhar.BodyResponseType{
				Size:     5,
				MIMEType: "text/plain",
				Content:  base64.StdEncoding.EncodeToString([]byte("moved")),
				Encoding: "base64",
			},
		},
		Timings:  harhar.Timings{DNS: 1, Connect: 2, SSL: 0, Send: 0.5, Wait: 100},
		ServerIP: "93.184.216.34",
		Comment:  "negative duration -3ms clamped to 0",
	}
}

func sectionTitles(sections []Section) []string {
	titles := make([]string, len(sections))
	for i, s := range sections {
		titles[i] = s.Title
	}
	return titles
}

func TestRequestSections(t *testing.T) {
	sections := requestSections(detailEntry())
	assert.Equal(t, []string{"Request", "Headers", "Query Parameters", "Post Data"}, sectionTitles(sections))

	postData := sections[3]
	assert.Equal(t, "user=ada", postData.Block)
	assert.Contains(t, postData.Pairs, KeyValuePair{"user", "ada"})
}

func TestRequestSections_Minimal(t *testing.T) {
	entry := &harhar.Entry{Request: harhar.Request{Method: "GET", URL: "https://example.com/"}}
	assert.Equal(t, []string{"Request"}, sectionTitles(requestSections(entry)))
}

func TestResponseSections(t *testing.T) {
	sections := responseSections(detailEntry())
	assert.Equal(t, []string{"Response", "Headers", "Body", "Timings", "Notes"}, sectionTitles(sections))

	assert.Contains(t, sections[0].Pairs, KeyValuePair{"Status", "302 Found"})
	assert.Contains(t, sections[0].Pairs, KeyValuePair{"Server", "93.184.216.34"})
	assert.Equal(t, "moved", sections[2].Block, "printable base64 bodies are decoded")
	assert.Contains(t, sections[3].Pairs, KeyValuePair{"Wait", "100.00ms"})
	assert.Contains(t, sections[3].Pairs, KeyValuePair{"Total", "125.50ms"})
}

func TestResponseSections_NoResponse(t *testing.T) {
	sections := responseSections(&harhar.Entry{})
	require.NotEmpty(t, sections)
	assert.Contains(t, sections[0].Pairs, KeyValuePair{"Status", "no response"})
	assert.Equal(t, []string{"Response", "Timings"}, sectionTitles(sections))
}

func TestResponseContent(t *testing.T) {
	assert.Empty(t, responseContent(&harhar.BodyResponseType{}))
	assert.Equal(t, "{}", responseContent(&harhar.BodyResponseType{Content: "{}"}))

	binary := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G', 0x00, 0x01})
	assert.Equal(t, "(base64, 8 encoded bytes)", responseContent(&harhar.BodyResponseType{Content: binary, Encoding: "base64"}))

	long := strings.Repeat("a", maxBodyDisplayLength+10)
	assert.True(t, strings.HasSuffix(responseContent(&harhar.BodyResponseType{Content: long}), "...[truncated]"))
}

func TestRenderSections(t *testing.T) {
	out := renderSections([]Section{
		{Title: "Request", Pairs: []KeyValuePair{{"Method", "GET"}, {"Empty", ""}}},
		{Title: "Body", Block: "hello"},
	}, 60, true)

	assert.Contains(t, out, "Request")
	assert.Contains(t, out, "GET")
	assert.Contains(t, out, "(empty)")
	assert.Contains(t, out, "hello")

	out = renderSections([]Section{{Pairs: []KeyValuePair{{"URL", strings.Repeat("x", 200)}}}}, 60, true)
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.Repeat("x", 100))
}

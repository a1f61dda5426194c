package tui

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/pb33f/harhar"
)

const (
	minDetailKeyWidth  = 12
	maxDetailKeyWidth  = 24
	detailColumnMargin = 2
)

var (
	detailKeyStyle    = lipgloss.NewStyle().Foreground(RGBGrey).Align(lipgloss.Right)
	detailHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(RGBPink)
	detailEmptyValue  = lipgloss.NewStyle().Faint(true).Render("(empty)")
)

// KeyValuePair is one line of the detail panels.
type KeyValuePair struct {
	Key   string
	Value string
}

// Section groups pairs under a heading. Block is free text, such as a body,
// wrapped to the panel width below the pairs.
type Section struct {
	Title string
	Pairs []KeyValuePair
	Block string
}

// renderSections lays sections out as a right-aligned key column and a value
// column; values longer than the remaining width are cut when truncate is set.
func renderSections(sections []Section, width int, truncate bool) string {
	keyWidth := min(max(width*3/10, minDetailKeyWidth), maxDetailKeyWidth)
	valueWidth := width - keyWidth - detailColumnMargin
	keyStyle := detailKeyStyle.Width(keyWidth)

	var out strings.Builder
	for i, section := range sections {
		if i > 0 {
			out.WriteString("\n")
		}
		if section.Title != "" {
			out.WriteString(detailHeaderStyle.Render(section.Title))
			out.WriteString("\n")
		}
		for _, pair := range section.Pairs {
			value := pair.Value
			switch {
			case value == "":
				value = detailEmptyValue
			case truncate && valueWidth > 0 && len(value) > valueWidth:
				value = truncateString(value, valueWidth)
			}
			out.WriteString(keyStyle.Render(pair.Key))
			out.WriteString(strings.Repeat(" ", detailColumnMargin))
			out.WriteString(value)
			out.WriteString("\n")
		}
		if section.Block != "" {
			out.WriteString(lipgloss.NewStyle().Width(max(width, 1)).Render(section.Block))
			out.WriteString("\n")
		}
	}
	return out.String()
}

func requestSections(entry *harhar.Entry) []Section {
	req := &entry.Request
	sections := []Section{{
		Title: "Request",
		Pairs: []KeyValuePair{
			{"Method", req.Method},
			{"URL", req.URL},
			{"HTTP Version", req.HTTPVersion},
			{"Started", entry.Start},
		},
	}}

	if len(req.Headers) > 0 {
		sections = append(sections, Section{Title: "Headers", Pairs: nameValuePairs(req.Headers)})
	}
	if len(req.QueryParams) > 0 {
		sections = append(sections, Section{Title: "Query Parameters", Pairs: nameValuePairs(req.QueryParams)})
	}

	if req.Body.Content != "" {
		pairs := []KeyValuePair{{"Content-Type", req.Body.MIMEType}}
		for _, p := range req.Body.Params {
			pairs = append(pairs, KeyValuePair{p.Name, p.Value})
		}
		sections = append(sections, Section{Title: "Post Data", Pairs: pairs, Block: clampBody(req.Body.Content)})
	}

	return sections
}

func responseSections(entry *harhar.Entry) []Section {
	resp := &entry.Response
	status := "no response"
	if resp.StatusCode > 0 {
		status = strings.TrimSpace(fmt.Sprintf("%d %s", resp.StatusCode, resp.StatusText))
	}

	sections := []Section{{
		Title: "Response",
		Pairs: []KeyValuePair{
			{"Status", status},
			{"HTTP Version", resp.HTTPVersion},
			{"Server", entry.ServerIP},
			{"Connection", entry.Connection},
		},
	}}

	if len(resp.Headers) > 0 {
		sections = append(sections, Section{Title: "Headers", Pairs: nameValuePairs(resp.Headers)})
	}

	if resp.Body.Content != "" || resp.Body.Size > 0 {
		sections = append(sections, Section{
			Title: "Body",
			Pairs: []KeyValuePair{
				{"Content-Type", resp.Body.MIMEType},
				{"Size", fmt.Sprintf("%d bytes", resp.Body.Size)},
			},
			Block: responseContent(&resp.Body),
		})
	}

	t := entry.Timings
	sections = append(sections, Section{
		Title: "Timings",
		Pairs: []KeyValuePair{
			{"Total", fmt.Sprintf("%.2fms", entry.Time)},
			{"DNS", fmt.Sprintf("%.2fms", t.DNS)},
			{"Connect", fmt.Sprintf("%.2fms", t.Connect)},
			{"SSL", fmt.Sprintf("%.2fms", t.SSL)},
			{"Send", fmt.Sprintf("%.2fms", t.Send)},
			{"Wait", fmt.Sprintf("%.2fms", t.Wait)},
		},
	})

	if entry.Comment != "" {
		sections = append(sections, Section{
			Title: "Notes",
			Pairs: []KeyValuePair{{"Comment", commentStyle.Render(entry.Comment)}},
		})
	}

	return sections
}

// binary payloads stay encoded; text that round-trips base64 is shown decoded
func responseContent(body *harhar.BodyResponseType) string {
	if body.Content == "" {
		return ""
	}
	if body.Encoding != "base64" {
		return clampBody(body.Content)
	}
	decoded, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil || !isPrintable(decoded) {
		return fmt.Sprintf("(base64, %d encoded bytes)", len(body.Content))
	}
	return clampBody(string(decoded))
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' {
			return false
		}
	}
	return true
}

func clampBody(content string) string {
	if len(content) <= maxBodyDisplayLength {
		return content
	}
	return content[:maxBodyDisplayLength] + "\n...[truncated]"
}

func nameValuePairs(nvps []harhar.NameValuePair) []KeyValuePair {
	pairs := make([]KeyValuePair, len(nvps))
	for i, nvp := range nvps {
		pairs[i] = KeyValuePair{nvp.Name, nvp.Value}
	}
	return pairs
}

package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/v2/table"
	"github.com/charmbracelet/lipgloss/v2"
)

// ANSI prefix the table emits for the selected row (see ApplyTableStyles)
const selectedRowMarker = "\x1b[1;38;5;201;48;2;42;26;42m"

type methodColor struct {
	plain    string
	rendered string
}

// ordered by how often each method shows up in a browser capture
var methodColors = buildMethodColors([]struct {
	method string
	style  lipgloss.Style
}{
	{"GET", StyleMethodGreen},
	{"POST", StyleMethodBlue},
	{"OPTIONS", StyleMethodGreen},
	{"PUT", StyleMethodBlue},
	{"DELETE", StyleMethodRed},
	{"PATCH", StyleMethodYellow},
	{"HEAD", StyleMethodGreen},
})

var renderedPending = StyleStatusPending.Render("---")

func buildMethodColors(in []struct {
	method string
	style  lipgloss.Style
}) []methodColor {
	out := make([]methodColor, len(in))
	for i, m := range in {
		out[i] = methodColor{
			plain:    " " + m.method + " ",
			rendered: " " + m.style.Render(m.method) + " ",
		}
	}
	return out
}

// ColorizeTable post-processes the rendered table. The header and the
// selected row are left alone so the selection background stays intact.
func ColorizeTable(tableView string, cursor int, rows []table.Row) string {
	var selected string
	if cursor >= 0 && cursor < len(rows) {
		selected = stripSpaces(strings.Join(rows[cursor], ""))
	}

	// row text only decides when the marker is missing, otherwise duplicates
	// of the selected row would stay plain
	if strings.Contains(tableView, selectedRowMarker) {
		selected = ""
	}

	lines := strings.Split(tableView, "\n")
	var out strings.Builder
	out.Grow(len(tableView) + len(lines)*40)

	for i, line := range lines {
		if i > 0 && !isSelectedLine(line, selected) {
			line = colorizeMethod(line)
			line = colorizeStatus(line)
			line = colorizeDuration(line)
		}
		out.WriteString(line)
		if i < len(lines)-1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func isSelectedLine(line, selected string) bool {
	if strings.Contains(line, selectedRowMarker) {
		return true
	}
	return selected != "" && strings.Contains(stripSpaces(line), selected)
}

func stripSpaces(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

func colorizeMethod(line string) string {
	for _, mc := range methodColors {
		if strings.Contains(line, mc.plain) {
			return strings.Replace(line, mc.plain, mc.rendered, 1)
		}
	}
	return line
}

// finds the first " NNN " run; 4xx turn yellow, 5xx red and unanswered rows grey
func colorizeStatus(line string) string {
	if strings.Contains(line, " --- ") {
		return strings.Replace(line, " --- ", " "+renderedPending+" ", 1)
	}

	for i := 0; i+4 < len(line); i++ {
		if line[i] != ' ' || line[i+4] != ' ' || !isDigit(line[i+1]) || !isDigit(line[i+2]) || !isDigit(line[i+3]) {
			continue
		}
		code := line[i+1 : i+4]
		var style *lipgloss.Style
		switch code[0] {
		case '4':
			style = &StyleStatus4xx
		case '5':
			style = &StyleStatus5xx
		default:
			return line
		}
		return line[:i+1] + style.Render(code) + line[i+4:]
	}
	return line
}

func colorizeDuration(line string) string {
	idx := strings.LastIndexByte(strings.TrimRight(line, " "), ' ')
	if idx < 0 {
		return line
	}
	tail := strings.TrimRight(line[idx+1:], " ")
	if !isDuration(tail) {
		return line
	}
	return line[:idx+1] + StyleDurationFaint.Render(tail) + line[idx+1+len(tail):]
}

// accepts "12ms", "1.5s", "830μs"; rejects paths and identifiers
func isDuration(s string) bool {
	var number string
	for _, unit := range []string{"ms", "μs", "s"} {
		if v, ok := strings.CutSuffix(s, unit); ok {
			number = v
			break
		}
	}
	if number == "" || !isDigit(number[0]) {
		return false
	}

	dots := 0
	for i := 0; i < len(number); i++ {
		switch {
		case number[i] == '.':
			dots++
			if dots > 1 {
				return false
			}
		case !isDigit(number[i]):
			return false
		}
	}
	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

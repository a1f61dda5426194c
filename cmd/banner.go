package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/pb33f/logtracker/tui"
)

var bannerLines = []string{
	"@@@       @@@@@@@  @@@@@@@  @@@@@@@   @@@@@@    @@@@@@@  @@@  @@@",
	"@@!      !@@         @@!    @@!  @@@  @@!  @@@  !@@       @@!  !@@",
	"@!!      !@! @!@!@   @!!    @!@!!@!   @!@!@!@!  !@!       @!@@!@! ",
	"!!:      :!!   !!:   !!:    !!: :!!   !!:  !!!  :!!       !!: :!! ",
	": ::.: :  :: :: :     :      :   : :   :   : :   :: :: :   :   ::: ",
}

// RenderBanner returns the styled banner shown by the version command.
func RenderBanner() string {
	art := lipgloss.NewStyle().Foreground(tui.RGBPink).Bold(true).
		Render(strings.Join(bannerLines, "\n"))
	subtitle := lipgloss.NewStyle().Foreground(tui.RGBBlue).Italic(true).
		Render("browser session capture: HAR + console reports")

	return lipgloss.NewStyle().MarginBottom(1).Render(art + "\n" + subtitle)
}

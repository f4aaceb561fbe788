package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
)

const banner = `
 _  _                  _____        _
| \| |___ _  _ _ _ ___|_   _|_ _ __| |_____ _ _
| .' / -_) || | '_/ _ \ | |/ _' (_-< / / -_) '_|
|_|\_\___|\_,_|_| \___/ |_|\__,_/__/_\_\___|_|

      >> one tiny step at a time <<
`

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// PrintBanner writes the startup banner centred for the current terminal.
func PrintBanner(w io.Writer) {
	width := termWidth()
	color := term.IsTerminal(int(os.Stdout.Fd()))

	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		if color {
			fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan, l, colorReset)
		} else {
			fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", padding), l)
		}
	}
}

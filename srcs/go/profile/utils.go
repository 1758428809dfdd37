package profile

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

func padRight(n int, s string) string {
	if k := n - utf8.RuneCountInString(s); k > 0 {
		return s + strings.Repeat(" ", k)
	}
	return s
}

func showTable(w io.Writer, th []string, rows [][]string) {
	widths := make([]int, len(th))
	for i, title := range th {
		widths[i] = len(title)
	}
	for _, tr := range rows {
		for i, td := range tr {
			if n := len(td); n > widths[i] {
				widths[i] = n
			}
		}
	}
	total := -1
	for _, n := range widths {
		total += n + 5
	}
	showRow := func(tr []string) {
		for i, td := range tr {
			if i > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprint(w, padRight(4+widths[i], td))
		}
		fmt.Fprintln(w)
	}
	showRow(th)
	fmt.Fprintln(w, strings.Repeat("-", total))
	for _, tr := range rows {
		showRow(tr)
	}
}

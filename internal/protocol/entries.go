package protocol

import (
	"strconv"
	"strings"
)

// FormatEntry renders one directory line: "RFC <n> <title> <host> <port>"
func FormatEntry(n int, title, host string, port int) string {
	return "RFC " + strconv.Itoa(n) + " " + title + " " + host + " " + strconv.Itoa(port)
}

// EntryLine is a parsed directory line
type EntryLine struct {
	Number int
	Title  string
	Host   string
	Port   int
}

// ParseEntryLines parses a LOOKUP or LIST body.
// Host and port are the last two tokens; the title is everything between the number and the host.
// Lines that do not look like entries are skipped.
func ParseEntryLines(body string) []EntryLine {
	var result []EntryLine
	for _, line := range strings.Split(body, CRLF) {
		parts := strings.Fields(line)
		if len(parts) < 5 || parts[0] != "RFC" {
			continue
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			continue
		}
		result = append(result, EntryLine{
			Number: n,
			Title:  strings.Join(parts[2:len(parts)-2], " "),
			Host:   parts[len(parts)-2],
			Port:   port,
		})
	}
	return result
}

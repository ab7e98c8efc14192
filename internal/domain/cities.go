package domain

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseCities reads one city per line. Blank lines and lines starting with
// '#' are skipped; repeated cities are kept once.
func ParseCities(r io.Reader) ([]string, error) {
	var cities []string
	seen := make(map[string]struct{})

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		cities = append(cities, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cities: %w", err)
	}
	return cities, nil
}

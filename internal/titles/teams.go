package titles

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JakeFAU/falchooser/internal/model"
)

// ParseTeams reads blank-line separated blocks. The first line of a block names the
// user and each following line is one anime title.
func ParseTeams(r io.Reader) ([]model.Team, error) {
	var (
		teams   []model.Team
		current *model.Team
		seen    = make(map[string]bool)
	)
	flush := func() error {
		if current == nil {
			return nil
		}
		if seen[current.User] {
			return fmt.Errorf("user %q listed twice", current.User)
		}
		seen[current.User] = true
		teams = append(teams, *current)
		current = nil
		return nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if current == nil {
			current = &model.Team{User: line}
			continue
		}
		current.Titles = append(current.Titles, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan team list: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return teams, nil
}

// ReadTeams parses the team list at path.
func ReadTeams(path string) ([]model.Team, error) {
	// #nosec G304 -- path is supplied by the operator on the command line.
	fd, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open team list: %w", err)
	}
	defer func() { _ = fd.Close() }()
	teams, err := ParseTeams(fd)
	if err != nil {
		return nil, fmt.Errorf("parse team list %s: %w", path, err)
	}
	return teams, nil
}

package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/naka-gawa/github-gitlog/internal/apperr"
)

// Prompter asks the user for a missing value.
type Prompter interface {
	Prompt(question string) (string, error)
}

// LinePrompter reads one answer per line from in and writes questions to out.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter creates a LinePrompter.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Prompt(question string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", question)
	answer, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && answer != "") {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

// Complete asks p for every required value that is still missing. A nil p means the
// session is not interactive, and missing values are left for Validate to report.
func (c *Config) Complete(p Prompter) error {
	if p == nil {
		return nil
	}
	if len(c.Formats) == 0 {
		answer, err := p.Prompt("Output format (csv, sqlite or both)")
		if err != nil {
			return apperr.New(apperr.KindConfig, "prompt format", err)
		}
		if c.Formats, err = ParseFormats([]string{answer}); err != nil {
			return err
		}
	}
	if c.Organization == "" {
		answer, err := p.Prompt("GitHub organization")
		if err != nil {
			return apperr.New(apperr.KindConfig, "prompt organization", err)
		}
		c.Organization = answer
	}
	if c.Token == "" {
		answer, err := p.Prompt("GitHub access token")
		if err != nil {
			return apperr.New(apperr.KindConfig, "prompt token", err)
		}
		c.Token = answer
	}
	return nil
}

package burstgate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

const (
	countPrompt = "Enter the number of API requests: "
	urlPrompt   = "Enter the target URL: "
)

// ParseCount parses a request count. It must be a non-negative base-10
// integer; surrounding whitespace is ignored.
func ParseCount(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, &InputError{Field: "count", Value: s, Err: errors.New("not an integer")}
	}
	if n < 0 {
		return 0, &InputError{Field: "count", Value: s, Err: errors.New("must not be negative")}
	}
	return n, nil
}

// ValidateURL checks that rawURL is an absolute http or https URL with a host.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &InputError{Field: "url", Value: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &InputError{Field: "url", Value: rawURL, Err: errors.New("scheme must be http or https")}
	}
	if u.Host == "" {
		return &InputError{Field: "url", Value: rawURL, Err: errors.New("host is required")}
	}
	return nil
}

// Prompt asks for the request count and then the target URL, one line each.
//
// A malformed count is reported as an [*InputError] before the URL is asked
// for. Prompts are written to w; answers are read from r.
func Prompt(r io.Reader, w io.Writer) (rawURL string, count int, err error) {
	reader := bufio.NewReader(r)

	count, err = promptCount(reader, w)
	if err != nil {
		return "", 0, err
	}
	rawURL, err = promptURL(reader, w)
	if err != nil {
		return "", 0, err
	}
	return rawURL, count, nil
}

// PromptCount asks for the request count only.
func PromptCount(r io.Reader, w io.Writer) (int, error) {
	return promptCount(bufio.NewReader(r), w)
}

// PromptURL asks for the target URL only.
func PromptURL(r io.Reader, w io.Writer) (string, error) {
	return promptURL(bufio.NewReader(r), w)
}

func promptCount(r *bufio.Reader, w io.Writer) (int, error) {
	if _, err := fmt.Fprint(w, countPrompt); err != nil {
		return 0, err
	}
	line, err := readLine(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read request count: %w", err)
	}
	return ParseCount(line)
}

func promptURL(r *bufio.Reader, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, urlPrompt); err != nil {
		return "", err
	}
	line, err := readLine(r)
	if err != nil {
		return "", fmt.Errorf("failed to read target URL: %w", err)
	}
	rawURL := strings.TrimSpace(line)
	if err := ValidateURL(rawURL); err != nil {
		return "", err
	}
	return rawURL, nil
}

// readLine returns the next line without its terminator. A final line
// without a newline is accepted; an empty stream is io.ErrUnexpectedEOF.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

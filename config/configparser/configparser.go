/*
 * yams - Configuration file parser
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package configparser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

/* Configuration file format:
 *
 * '#' indicates comment, rest of line is ignored.
 * <file> := *(<section>)
 * <section> := <header> *(<option>)
 * <header> := '[' <name> ']'
 * <option> := <key> (<whitespace> <value>) <eol>
 * <value> := *(<word> | <quotedstring>) *(<whitespace> ...)
 * <quotedstring> := '"' *(<letter> | <whitespace>) '"'
 *
 * One [Simulator] section configures the machine itself; one
 * [Disk]/[TTY]/[NIC]/[Plugin] section per occurrence configures one
 * device instance. Socket-bearing devices carry a "socket" option whose
 * Words hold one of:
 *
 *   unixsocket "path" [listen]
 *   tcphost "host" port [listen]
 *   udphost "addr" port
 */

// Option is one "key value..." line inside a section.
type Option struct {
	Key   string   // option name, as written (case preserved)
	Value string   // raw text following the key, trimmed
	Words []string // Value tokenized, quote-aware
}

// Section is one bracketed block and the options collected inside it.
type Section struct {
	Name string
	Line int // line number of the "[Name]" header, for error messages
	Options
}

// Options is the option list of a Section, with lookup helpers.
type Options []Option

// Get returns the raw value of the first option named key, case
// insensitive, and whether it was present.
func (o Options) Get(key string) (string, bool) {
	for _, opt := range o {
		if strings.EqualFold(opt.Key, key) {
			return opt.Value, true
		}
	}
	return "", false
}

// Words returns the tokenized value of the first option named key.
func (o Options) Words(key string) ([]string, bool) {
	for _, opt := range o {
		if strings.EqualFold(opt.Key, key) {
			return opt.Words, true
		}
	}
	return nil, false
}

type sectionHandler func(Section) error

var sections = map[string]sectionHandler{}

// RegisterSection should be called from a device package's init
// function, the way the teacher's model1052.init calls
// config.RegisterModel("1052", ...). fn is invoked once per occurrence
// of a "[name]" section in the file, in file order.
func RegisterSection(name string, fn sectionHandler) {
	sections[strings.ToUpper(name)] = fn
}

var lineNumber int

// LoadConfigFile reads name section by section, dispatching each
// completed section to its registered handler.
func LoadConfigFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()

	lineNumber = 0
	reader := bufio.NewReader(file)
	var current *Section

	flush := func() error {
		if current == nil {
			return nil
		}
		fn, ok := sections[strings.ToUpper(current.Name)]
		if !ok {
			return fmt.Errorf("unknown section [%s], line %d", current.Name, current.Line)
		}
		return fn(*current)
	}

	for {
		text, rerr := reader.ReadString('\n')
		lineNumber++
		if len(text) == 0 && rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return rerr
		}

		cur := cursor{line: text}
		cur.skipSpace()
		if cur.isEOL() {
			if rerr != nil && errors.Is(rerr, io.EOF) {
				break
			}
			continue
		}

		if cur.line[cur.pos] == '[' {
			if err := flush(); err != nil {
				return err
			}
			name, err := cur.parseHeader()
			if err != nil {
				return err
			}
			current = &Section{Name: name, Line: lineNumber}
			if rerr != nil && errors.Is(rerr, io.EOF) {
				break
			}
			continue
		}

		if current == nil {
			return fmt.Errorf("option outside any section, line %d", lineNumber)
		}
		opt, err := cur.parseOption()
		if err != nil {
			return err
		}
		if opt != nil {
			current.Options = append(current.Options, *opt)
		}
		if rerr != nil && errors.Is(rerr, io.EOF) {
			break
		}
	}
	return flush()
}

// cursor walks one line, mirroring the teacher's optionLine scanner.
type cursor struct {
	line string
	pos  int
}

func (c *cursor) skipSpace() {
	for !c.isEOL() && unicode.IsSpace(rune(c.line[c.pos])) {
		c.pos++
	}
}

func (c *cursor) isEOL() bool {
	if c.pos >= len(c.line) {
		return true
	}
	return c.line[c.pos] == '#'
}

func (c *cursor) peek() byte {
	if c.pos >= len(c.line) {
		return 0
	}
	return c.line[c.pos]
}

// parseHeader consumes "[name]" and returns name.
func (c *cursor) parseHeader() (string, error) {
	c.pos++ // consume '['
	start := c.pos
	for !c.isEOL() && c.line[c.pos] != ']' {
		c.pos++
	}
	if c.isEOL() {
		return "", fmt.Errorf("unterminated section header, line %d", lineNumber)
	}
	name := strings.TrimSpace(c.line[start:c.pos])
	if name == "" {
		return "", fmt.Errorf("empty section header, line %d", lineNumber)
	}
	return name, nil
}

// parseWord reads a bare word or a "quoted string" (with "" as an
// escaped quote inside the quotes), stopping at whitespace or EOL.
func (c *cursor) parseWord() string {
	if c.peek() == '"' {
		c.pos++
		var b strings.Builder
		for {
			if c.pos >= len(c.line) {
				break
			}
			by := c.line[c.pos]
			if by == '"' {
				c.pos++
				if c.peek() == '"' {
					b.WriteByte('"')
					c.pos++
					continue
				}
				break
			}
			b.WriteByte(by)
			c.pos++
		}
		return b.String()
	}
	start := c.pos
	for !c.isEOL() && !unicode.IsSpace(rune(c.line[c.pos])) {
		c.pos++
	}
	return c.line[start:c.pos]
}

// parseOption reads "key value..." possibly with an "=" between key
// and value (both "key value" and "key = value" are accepted).
func (c *cursor) parseOption() (*Option, error) {
	c.skipSpace()
	if c.isEOL() {
		return nil, nil
	}
	start := c.pos
	for !c.isEOL() && !unicode.IsSpace(rune(c.line[c.pos])) && c.line[c.pos] != '=' {
		c.pos++
	}
	key := c.line[start:c.pos]
	if key == "" {
		return nil, fmt.Errorf("invalid option, line %d", lineNumber)
	}
	c.skipSpace()
	if !c.isEOL() && c.peek() == '=' {
		c.pos++
		c.skipSpace()
	}

	var words []string
	for !c.isEOL() {
		w := c.parseWord()
		if w != "" {
			words = append(words, w)
		}
		c.skipSpace()
	}

	return &Option{Key: key, Value: strings.Join(words, " "), Words: words}, nil
}

// SocketSpec is the parsed form of a device's "socket" option.
type SocketSpec struct {
	Kind   string // "unix", "tcp", or "udp"
	Path   string // unix socket path
	Host   string // tcp/udp host or multicast address
	Port   int    // tcp/udp port
	Listen bool   // unix/tcp: accept connections rather than dial out
}

// ParseSocketSpec parses the tokenized value of a "socket" option:
//
//	unixsocket "path" [listen]
//	tcphost "host" port [listen]
//	udphost "addr" port
func ParseSocketSpec(words []string) (SocketSpec, error) {
	if len(words) == 0 {
		return SocketSpec{}, errors.New("empty socket specification")
	}
	switch strings.ToLower(words[0]) {
	case "unixsocket":
		if len(words) < 2 {
			return SocketSpec{}, errors.New("unixsocket requires a path")
		}
		spec := SocketSpec{Kind: "unix", Path: words[1]}
		spec.Listen = len(words) > 2 && strings.EqualFold(words[2], "listen")
		return spec, nil
	case "tcphost":
		if len(words) < 3 {
			return SocketSpec{}, errors.New("tcphost requires a host and a port")
		}
		port, err := parsePort(words[2])
		if err != nil {
			return SocketSpec{}, err
		}
		spec := SocketSpec{Kind: "tcp", Host: words[1], Port: port}
		spec.Listen = len(words) > 3 && strings.EqualFold(words[3], "listen")
		return spec, nil
	case "udphost":
		if len(words) < 3 {
			return SocketSpec{}, errors.New("udphost requires an address and a port")
		}
		port, err := parsePort(words[2])
		if err != nil {
			return SocketSpec{}, err
		}
		return SocketSpec{Kind: "udp", Host: words[1], Port: port}, nil
	default:
		return SocketSpec{}, fmt.Errorf("unknown socket kind %q", words[0])
	}
}

func parsePort(s string) (int, error) {
	var port int
	if _, err := fmt.Sscanf(s, "%d", &port); err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

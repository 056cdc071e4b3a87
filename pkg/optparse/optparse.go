// Package optparse implements a getopt_long-style command-line option
// parser: short (`-x`) and long (`--long`) options, each with a NONE,
// REQUIRED, or OPTIONAL argument mode, parsed incrementally one call at a
// time against a caller-supplied argv slice.
package optparse

import "strings"

// ArgMode controls whether an option takes an argument, and if so, how
// that argument is found.
type ArgMode uint8

const (
	// NoArg means the option never takes an argument.
	NoArg ArgMode = iota

	// RequiredArg means the option must be followed by an argument,
	// either attached (`-xvalue`, `--long=value`) or as the next argv
	// entry (`-x value`, `--long value`).
	RequiredArg

	// OptionalArg means the option may be followed by an argument, either
	// attached (`-xvalue`, `--long=value`) or as the next argv entry; the
	// next argv entry is only consumed if it does not itself parse as
	// another option, otherwise the option is reported with no argument
	// and the next entry is left for the following call.
	OptionalArg
)

// Option describes one recognised flag. Short is the bare letter (no
// leading dash) or 0 if this option has no short form; Long is the bare
// name (no leading dashes) or empty if it has no long form. At least one
// of the two must be set.
type Option struct {
	Short byte
	Long  string
	Mode  ArgMode
}

// Code is the outcome of one Next call.
type Code int

const (
	// OK means an option was recognised and captured.
	OK Code = iota

	// End means argv has been fully consumed (or a `--`/bare `-` ended
	// option parsing); remaining positional arguments start at Index().
	End

	// Unknown means the current argv entry looks like an option but
	// matches none of the configured Options.
	Unknown

	// MissingArg means a REQUIRED-argument option was found with no
	// argument available (attached or following).
	MissingArg

	// Err means the current argv entry is malformed: a long option that
	// takes no argument was given one with `=` (`--flag=value`).
	Err
)

// String renders the code name for logging/diagnostics.
func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case End:
		return "END"
	case Unknown:
		return "UNKNOWN"
	case MissingArg:
		return "MISSING_ARG"
	case Err:
		return "ERR"
	default:
		return "?"
	}
}

// Parser walks a fixed argv slice one option at a time.
type Parser struct {
	args    []string
	options []Option
	index   int // next unconsumed argv entry

	// pending holds the unconsumed remainder of a bundled short-option
	// token (e.g. the "bc" left over after "-abc" yields "a"), parsed as
	// its own token on the following Next() call. Kept here rather than
	// rewritten into args so the caller's slice is never mutated.
	pending    string
	hasPending bool

	stopped bool
}

// New returns a Parser over args (typically os.Args[1:]) recognising the
// given options. The options slice is not copied; callers should not
// mutate it while the parser is in use.
func New(args []string, opts []Option) *Parser {
	return &Parser{args: args, options: opts}
}

// Index returns the index into the original argv slice of the next
// argument Next has not yet consumed. Once parsing ends (End), every
// remaining entry from Index() onward is a positional argument.
func (p *Parser) Index() int {
	return p.index
}

// Next consumes and classifies the next argv entry. opt is non-nil only
// when code is OK; value holds the option's argument, if any.
func (p *Parser) Next() (code Code, opt *Option, value string) {
	if p.hasPending {
		body := p.pending
		p.pending = ""
		p.hasPending = false
		return p.parseShortBody(body)
	}

	if p.stopped || p.index >= len(p.args) {
		return End, nil, ""
	}

	tok := p.args[p.index]

	if tok == "--" {
		p.index++
		p.stopped = true
		return End, nil, ""
	}
	if tok == "-" {
		p.stopped = true
		return End, nil, ""
	}

	switch {
	case strings.HasPrefix(tok, "--"):
		return p.parseLong(tok)
	case strings.HasPrefix(tok, "-"):
		p.index++
		return p.parseShortBody(tok[1:])
	default:
		p.stopped = true
		return End, nil, ""
	}
}

func (p *Parser) find(short byte, long string) *Option {
	for i := range p.options {
		o := &p.options[i]
		if long != "" && o.Long == long {
			return o
		}
		if long == "" && o.Short == short {
			return o
		}
	}
	return nil
}

func (p *Parser) parseLong(tok string) (Code, *Option, string) {
	body := tok[2:]
	if body == "" {
		p.index++
		return Err, nil, ""
	}

	name := body
	attached := ""
	hasAttached := false
	if i := strings.IndexByte(body, '='); i >= 0 {
		name = body[:i]
		attached = body[i+1:]
		hasAttached = true
	}

	opt := p.find(0, name)
	if opt == nil {
		p.index++
		return Unknown, nil, ""
	}
	p.index++

	switch opt.Mode {
	case NoArg:
		if hasAttached {
			return Err, nil, ""
		}
		return OK, opt, ""

	case RequiredArg:
		if hasAttached {
			return OK, opt, attached
		}
		if p.index < len(p.args) {
			value := p.args[p.index]
			p.index++
			return OK, opt, value
		}
		return MissingArg, opt, ""

	case OptionalArg:
		if hasAttached {
			return OK, opt, attached
		}
		if p.index < len(p.args) && !p.looksLikeOption(p.args[p.index]) {
			value := p.args[p.index]
			p.index++
			return OK, opt, value
		}
		return OK, opt, ""
	}

	return Err, nil, ""
}

// parseShortBody classifies one short-option letter and whatever follows
// it within its token — body is everything after the leading dash, e.g.
// "abc" for the token "-abc" or just "v" for "-v". The caller has already
// advanced p.index past the token itself (or, when resuming a bundled
// flag's remainder, not at all, since that remainder was never its own
// argv entry).
func (p *Parser) parseShortBody(body string) (Code, *Option, string) {
	letter := body[0]
	opt := p.find(letter, "")
	if opt == nil {
		return Unknown, nil, ""
	}

	rest := body[1:]

	switch opt.Mode {
	case NoArg:
		if rest == "" {
			return OK, opt, ""
		}
		// Bundled short flags (-abc): stash the remainder to be parsed as
		// its own token on the next Next() call, rather than mutating the
		// caller's argv to re-drive it.
		p.pending = rest
		p.hasPending = true
		return OK, opt, ""

	case RequiredArg:
		if rest != "" {
			return OK, opt, rest
		}
		if p.index < len(p.args) {
			value := p.args[p.index]
			p.index++
			return OK, opt, value
		}
		return MissingArg, opt, ""

	case OptionalArg:
		if rest != "" {
			return OK, opt, rest
		}
		if p.index < len(p.args) && !p.looksLikeOption(p.args[p.index]) {
			value := p.args[p.index]
			p.index++
			return OK, opt, value
		}
		return OK, opt, ""
	}

	return Err, nil, ""
}

// looksLikeOption reports whether tok would itself be parsed as a short
// or long option, used to decide whether an OPTIONAL argument attaches.
func (p *Parser) looksLikeOption(tok string) bool {
	if tok == "--" || tok == "-" {
		return true
	}
	return strings.HasPrefix(tok, "-")
}

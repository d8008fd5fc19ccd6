package post

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRecord is matched by every decode failure.
var ErrMalformedRecord = errors.New("malformed record")

// RecordError describes why a line could not be decoded.
type RecordError struct {
	Line   string
	Token  int // token index, -1 when not token specific
	Reason string
}

func (e *RecordError) Error() string {
	if e.Token >= 0 {
		return fmt.Sprintf("malformed record %q: token %d: %s", e.Line, e.Token, e.Reason)
	}
	return fmt.Sprintf("malformed record %q: %s", e.Line, e.Reason)
}

func (e *RecordError) Unwrap() error { return ErrMalformedRecord }

// Encode renders the post as one line:
//
//	<id> <author_id> <unix_seconds> [m <mention>...] [r <reply_to>] [q <quote_of>]
func Encode(p Post) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(p.id, 10))
	b.WriteByte(' ')
	b.WriteString(strconv.FormatInt(p.authorID, 10))
	b.WriteByte(' ')
	b.WriteString(FormatUnix(p.createdAt))
	if len(p.mentions) > 0 {
		b.WriteString(" m")
		for _, id := range p.mentions {
			b.WriteByte(' ')
			b.WriteString(strconv.FormatInt(id, 10))
		}
	}
	if p.replyTo.Valid {
		b.WriteString(" r ")
		b.WriteString(strconv.FormatInt(p.replyTo.ID, 10))
	}
	if p.quoteOf.Valid {
		b.WriteString(" q ")
		b.WriteString(strconv.FormatInt(p.quoteOf.ID, 10))
	}
	return b.String()
}

type mode int

const (
	modeNone mode = iota
	modeMentions
	modeReply
	modeQuote
)

func modeFor(tok string) (mode, bool) {
	switch tok {
	case "m":
		return modeMentions, true
	case "r":
		return modeReply, true
	case "q":
		return modeQuote, true
	default:
		return modeNone, false
	}
}

// Decode parses a line produced by Encode.
func Decode(line string) (Post, error) {
	tokens := strings.Fields(line)
	if len(tokens) < 3 {
		return Post{}, &RecordError{Line: line, Token: -1, Reason: fmt.Sprintf("need at least 3 tokens, got %d", len(tokens))}
	}

	id, err := strconv.ParseInt(tokens[0], 10, 64)
	if err != nil {
		return Post{}, &RecordError{Line: line, Token: 0, Reason: "post id is not an integer"}
	}
	author, err := strconv.ParseInt(tokens[1], 10, 64)
	if err != nil {
		return Post{}, &RecordError{Line: line, Token: 1, Reason: "author id is not an integer"}
	}
	createdAt, err := ParseUnix(tokens[2])
	if err != nil {
		return Post{}, &RecordError{Line: line, Token: 2, Reason: "timestamp is not a number"}
	}

	f := Fields{ID: id, AuthorID: author, CreatedAt: createdAt}
	cur := modeNone
	for i := 3; i < len(tokens); i++ {
		tok := tokens[i]
		if m, ok := modeFor(tok); ok {
			cur = m
			continue
		}
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return Post{}, &RecordError{Line: line, Token: i, Reason: fmt.Sprintf("unknown token %q", tok)}
		}
		switch cur {
		case modeNone:
			return Post{}, &RecordError{Line: line, Token: i, Reason: "value before any m/r/q marker"}
		case modeMentions:
			f.Mentions = append(f.Mentions, v)
		case modeReply:
			if f.ReplyTo.Valid {
				return Post{}, &RecordError{Line: line, Token: i, Reason: "more than one reply target"}
			}
			f.ReplyTo = Some(v)
		case modeQuote:
			if f.QuoteOf.Valid {
				return Post{}, &RecordError{Line: line, Token: i, Reason: "more than one quote target"}
			}
			f.QuoteOf = Some(v)
		}
	}
	return New(f), nil
}

// FormatUnix writes seconds since epoch with microsecond precision,
// always keeping at least one fractional digit ("1700000000.0"). Times
// before the epoch get a leading minus on the whole value ("-0.5").
func FormatUnix(t time.Time) string {
	us := t.UnixMicro()
	sign := ""
	abs := uint64(us)
	if us < 0 {
		sign = "-"
		abs = uint64(-us)
	}
	sec, frac := abs/1e6, abs%1e6
	fs := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	if fs == "" {
		fs = "0"
	}
	return sign + strconv.FormatUint(sec, 10) + "." + fs
}

// maxUnixSeconds bounds timestamps to what fits in int64 microseconds.
const maxUnixSeconds = math.MaxInt64 / 1_000_000

// ParseUnix reads a decimal seconds value exactly (no float rounding) when
// it has the plain "[-]<int>[.<digits>]" form, and falls back to floats otherwise.
func ParseUnix(s string) (time.Time, error) {
	neg := strings.HasPrefix(s, "-")
	intPart, fracPart, hasFrac := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	if intPart != "" && allDigits(intPart) && allDigits(fracPart) {
		sec, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil || sec > maxUnixSeconds {
			return time.Time{}, fmt.Errorf("timestamp %q out of range", s)
		}
		var ns int64
		if hasFrac && fracPart != "" {
			digits := fracPart
			if len(digits) > 9 {
				digits = digits[:9]
			}
			digits += strings.Repeat("0", 9-len(digits))
			ns, _ = strconv.ParseInt(digits, 10, 64)
		}
		if neg {
			sec, ns = -sec, -ns
		}
		return time.Unix(sec, ns).UTC(), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= maxUnixSeconds {
		return time.Time{}, fmt.Errorf("timestamp %q out of range", s)
	}
	return time.UnixMicro(int64(f * 1e6)).UTC(), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

package announce

import (
	"fmt"
	"strings"

	"crossbot/internal/post"
)

const DefaultLinkBase = "https://twitter.com"

// Formatter renders announcement text. Names maps account ids to handles
// and may be nil.
type Formatter struct {
	Names    func(int64) string
	LinkBase string
}

func (f Formatter) name(id int64) string {
	if f.Names != nil {
		if n := f.Names(id); n != "" {
			return n
		}
	}
	return fmt.Sprint(id)
}

// Link is the public URL of p.
func (f Formatter) Link(p post.Post) string {
	base := strings.TrimRight(f.LinkBase, "/")
	if base == "" {
		base = DefaultLinkBase
	}
	return fmt.Sprintf("%s/%s/status/%d", base, f.name(p.AuthorID()), p.ID())
}

// Text is the message body: who interacted with whom, when, and the link.
func (f Formatter) Text(p post.Post) string {
	var b strings.Builder
	b.WriteString("@")
	b.WriteString(f.name(p.AuthorID()))

	parties := p.Counterparties()
	if len(parties) == 0 {
		b.WriteString(" with none")
	} else {
		b.WriteString(" with ")
		for i, id := range parties {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("@")
			b.WriteString(f.name(id))
		}
	}
	b.WriteString("\n")
	b.WriteString(p.DateString())
	b.WriteString("\n")
	b.WriteString(f.Link(p))
	return b.String()
}

// Package roster describes the monitored accounts, their organization tags
// and the directional cross relation between tags.
package roster

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Account struct {
	ID      int64
	Handle  string
	Tag     string
	Private bool
}

// Pair is one ordered entry of the cross relation: posts by From-tagged
// authors that involve To-tagged accounts are cross-company.
type Pair struct {
	From string
	To   string
}

// Roster is immutable after New and safe for concurrent reads.
type Roster struct {
	accounts []Account
	byID     map[int64]int
	byHandle map[string]int
	tags     map[string]struct{}
	cross    map[Pair]struct{}
}

func New(accounts []Account, cross []Pair) (*Roster, error) {
	if len(accounts) == 0 {
		return nil, errors.New("roster: no accounts")
	}
	r := &Roster{
		accounts: make([]Account, 0, len(accounts)),
		byID:     make(map[int64]int, len(accounts)),
		byHandle: make(map[string]int, len(accounts)),
		tags:     map[string]struct{}{},
		cross:    make(map[Pair]struct{}, len(cross)),
	}
	for _, a := range accounts {
		a.Handle = strings.TrimPrefix(strings.TrimSpace(a.Handle), "@")
		a.Tag = strings.TrimSpace(a.Tag)
		if a.Handle == "" {
			return nil, fmt.Errorf("roster: account %d has no handle", a.ID)
		}
		if a.Tag == "" {
			return nil, fmt.Errorf("roster: account %s has no tag", a.Handle)
		}
		if _, dup := r.byID[a.ID]; dup {
			return nil, fmt.Errorf("roster: duplicate account id %d", a.ID)
		}
		key := strings.ToLower(a.Handle)
		if _, dup := r.byHandle[key]; dup {
			return nil, fmt.Errorf("roster: duplicate handle %q", a.Handle)
		}
		r.byID[a.ID] = len(r.accounts)
		r.byHandle[key] = len(r.accounts)
		r.tags[a.Tag] = struct{}{}
		r.accounts = append(r.accounts, a)
	}
	for _, p := range cross {
		p.From, p.To = strings.TrimSpace(p.From), strings.TrimSpace(p.To)
		if _, ok := r.tags[p.From]; !ok {
			return nil, fmt.Errorf("roster: cross entry names unknown tag %q", p.From)
		}
		if _, ok := r.tags[p.To]; !ok {
			return nil, fmt.Errorf("roster: cross entry names unknown tag %q", p.To)
		}
		r.cross[p] = struct{}{}
	}
	return r, nil
}

// Accounts returns the accounts in declaration order.
func (r *Roster) Accounts() []Account {
	return append([]Account(nil), r.accounts...)
}

func (r *Roster) Len() int { return len(r.accounts) }

func (r *Roster) Lookup(id int64) (Account, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Account{}, false
	}
	return r.accounts[i], true
}

func (r *Roster) ByHandle(handle string) (Account, bool) {
	i, ok := r.byHandle[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))]
	if !ok {
		return Account{}, false
	}
	return r.accounts[i], true
}

// Handle returns the account handle, or the numeric id when unknown.
func (r *Roster) Handle(id int64) string {
	if a, ok := r.Lookup(id); ok {
		return a.Handle
	}
	return strconv.FormatInt(id, 10)
}

func (r *Roster) Tag(id int64) (string, bool) {
	a, ok := r.Lookup(id)
	if !ok {
		return "", false
	}
	return a.Tag, true
}

func (r *Roster) IsCross(authorTag, otherTag string) bool {
	_, ok := r.cross[Pair{From: authorTag, To: otherTag}]
	return ok
}

func (r *Roster) IsPrivate(id int64) bool {
	a, ok := r.Lookup(id)
	return ok && a.Private
}

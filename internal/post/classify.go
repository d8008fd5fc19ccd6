package post

// Membership maps accounts to organization tags and says which ordered
// (author tag, counterparty tag) pairs count as cross-company.
type Membership interface {
	Tag(accountID int64) (string, bool)
	IsCross(authorTag, otherTag string) bool
}

// IsCrossCompany reports whether any counterparty's tag is in a cross
// relation with the author's tag. It is false when the author is untagged.
func (p Post) IsCrossCompany(m Membership) bool {
	if m == nil {
		return false
	}
	authorTag, ok := m.Tag(p.authorID)
	if !ok {
		return false
	}
	for _, id := range p.counterpart {
		tag, ok := m.Tag(id)
		if ok && m.IsCross(authorTag, tag) {
			return true
		}
	}
	return false
}

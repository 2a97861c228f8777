package mir

import (
	"slices"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"
)

// Ident is the stable identifier shared by every artifact.
type Ident struct {
	// Key is crate::[Owner::]name, NFC-normalised. The module path only
	// appears when two items would otherwise collide.
	Key string
	// Symbol is Key mangled to [A-Za-z0-9_]. It drops the crate unless
	// another crate bridges an item with the same symbol.
	Symbol string
	Hash   uint64
}

// NewIdent builds an identifier from its key parts: crate first.
func NewIdent(parts ...string) Ident {
	key := norm.NFC.String(strings.Join(parts, "::"))
	return Ident{Key: key, Symbol: mangle(parts[1:]), Hash: xxh3.HashString(key)}
}

func mangle(parts []string) string {
	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteString("__")
		}
		lastUnderscore := false
		for _, r := range norm.NFC.String(p) {
			switch {
			case r == '_' || r < 0x80 && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'):
				sb.WriteRune(r)
				lastUnderscore = r == '_'
			case !lastUnderscore:
				sb.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(sb.String(), "_")
}

func sortIdents(ids []Ident) {
	slices.SortFunc(ids, func(a, b Ident) int { return strings.Compare(a.Key, b.Key) })
}

// identCandidate is an item waiting for its identifier.
type identCandidate struct {
	crate  string
	module []string
	owner  string
	name   string
	// suffix carries rendered type arguments of generic instances.
	suffix string
	assign func(Ident)
}

func (c identCandidate) parts(withModule bool) []string {
	parts := []string{c.crate}
	if withModule {
		parts = append(parts, c.module...)
	}
	if c.owner != "" {
		parts = append(parts, c.owner)
	}
	return append(parts, c.name+c.suffix)
}

// assignIdents gives every candidate its identifier. Candidates sharing a
// short key get the module-qualified key instead. Symbols drop the crate
// unless items of different crates would share one, in which case those
// items keep it. It returns the keys that had to be qualified and any key
// whose identifier or symbol still collides.
func assignIdents(cands []identCandidate) (qualified []string, dup string) {
	ids := make([]Ident, len(cands))
	withModule := make([]bool, len(cands))
	count := make(map[string]int, len(cands))
	for i, c := range cands {
		ids[i] = NewIdent(c.parts(false)...)
		count[ids[i].Key]++
	}
	symbolCrates := make(map[string]map[string]bool, len(cands))
	for i, c := range cands {
		if count[ids[i].Key] > 1 {
			qualified = append(qualified, ids[i].Key)
			withModule[i] = true
			ids[i] = NewIdent(c.parts(true)...)
		}
		sym := ids[i].Symbol
		if symbolCrates[sym] == nil {
			symbolCrates[sym] = make(map[string]bool)
		}
		symbolCrates[sym][c.crate] = true
	}
	seenKey := make(map[string]bool, len(cands))
	seenSymbol := make(map[string]bool, len(cands))
	for i, c := range cands {
		id := ids[i]
		if len(symbolCrates[id.Symbol]) > 1 {
			id.Symbol = mangle(c.parts(withModule[i]))
		}
		if seenKey[id.Key] || seenSymbol[id.Symbol] {
			return qualified, id.Key
		}
		seenKey[id.Key] = true
		seenSymbol[id.Symbol] = true
		c.assign(id)
	}
	slices.Sort(qualified)
	return slices.Compact(qualified), ""
}

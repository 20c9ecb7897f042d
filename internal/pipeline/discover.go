package pipeline

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/Examina/internal/core"
)

// DocumentSet pairs a question paper with its mark scheme for one
// (year, paper) scope.
type DocumentSet struct {
	Year      int
	Paper     string
	PaperKey  string // object key of the question paper
	SchemeKey string // object key of the mark scheme
}

func (s DocumentSet) Scope() string {
	return fmt.Sprintf("%d/%s", s.Year, s.Paper)
}

// Paper files are named {year}_{paper}_qp.pdf / {year}_{paper}_ms.pdf,
// e.g. papers/2019_p1_qp.pdf.
var paperNameRe = regexp.MustCompile(`^(\d{4})_([A-Za-z0-9]+)_(qp|ms)\.pdf$`)

// DiscoverSets lists the papers prefix and pairs question papers with mark
// schemes. Unpaired or unrecognized files are skipped with a warning; partial
// collections are expected and normal.
func DiscoverSets(ctx context.Context, store core.ObjectStore, prefix string, log zerolog.Logger) ([]DocumentSet, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}

	type pair struct {
		paperKey  string
		schemeKey string
	}
	pairs := make(map[string]*pair)
	order := make([]string, 0)

	for _, key := range keys {
		m := paperNameRe.FindStringSubmatch(path.Base(key))
		if m == nil {
			log.Warn().Str("key", key).Msg("skipping unrecognized object name")
			continue
		}
		scope := m[1] + "/" + m[2]
		p, ok := pairs[scope]
		if !ok {
			p = &pair{}
			pairs[scope] = p
			order = append(order, scope)
		}
		if m[3] == "qp" {
			p.paperKey = key
		} else {
			p.schemeKey = key
		}
	}
	sort.Strings(order)

	sets := make([]DocumentSet, 0, len(pairs))
	for _, scope := range order {
		p := pairs[scope]
		if p.paperKey == "" || p.schemeKey == "" {
			log.Warn().Str("scope", scope).Msg("skipping document set missing its pair")
			continue
		}
		m := paperNameRe.FindStringSubmatch(path.Base(p.paperKey))
		year, _ := strconv.Atoi(m[1])
		sets = append(sets, DocumentSet{
			Year:      year,
			Paper:     m[2],
			PaperKey:  p.paperKey,
			SchemeKey: p.schemeKey,
		})
	}
	return sets, nil
}

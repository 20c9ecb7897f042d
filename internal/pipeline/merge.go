package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/markdave123-py/Examina/internal/models"
)

// SchemeNotFound marks a question whose mark scheme could not be matched by
// question number. The question is kept; grading consumers treat this text as
// "no scheme available".
const SchemeNotFound = "Mark scheme not found."

// Merge reconciles the two independently extracted record streams by question
// number, then deduplicates and prunes structurally redundant parents. It is
// pure apart from logging and preserves first-seen input order.
//
// Policy notes:
//   - Dedup keeps the FIRST occurrence. Extraction order follows document
//     order, so later duplicates are parse artifacts, not corrections.
//   - A zero-mark record is dropped only when another record's number is a
//     proper hierarchical child of it (e.g. "3(a)" with "3(a)(i)" present).
//     A genuinely zero-mark leaf is kept.
func Merge(questions []models.QuestionRecord, schemes []models.MarkSchemeRecord, log zerolog.Logger) []models.QuestionRecord {
	schemeByNumber := make(map[string]models.MarkSchemeRecord, len(schemes))
	for _, s := range schemes {
		if _, ok := schemeByNumber[s.QuestionNumber]; !ok {
			schemeByNumber[s.QuestionNumber] = s
		}
	}

	// Attach schemes and drop duplicate question numbers, first-seen wins.
	seen := make(map[string]bool, len(questions))
	merged := make([]models.QuestionRecord, 0, len(questions))
	for _, q := range questions {
		if seen[q.QuestionNumber] {
			log.Debug().Str("question", q.QuestionNumber).Msg("dropping duplicate extraction")
			continue
		}
		seen[q.QuestionNumber] = true

		if s, ok := schemeByNumber[q.QuestionNumber]; ok {
			q.MarkScheme = s.MarkScheme
			q.ExaminerRemarks = s.ExaminerRemarks
		} else {
			log.Warn().Str("question", q.QuestionNumber).Msg("no mark scheme matched")
			q.MarkScheme = SchemeNotFound
		}
		merged = append(merged, q)
	}

	// Prune zero-mark parent stubs: stem text whose marks live in its parts.
	out := make([]models.QuestionRecord, 0, len(merged))
	for i := range merged {
		if merged[i].Marks == 0 && hasChild(&merged[i], merged) {
			log.Debug().Str("question", merged[i].QuestionNumber).Msg("pruning zero-mark parent stub")
			continue
		}
		out = append(out, merged[i])
	}
	return out
}

func hasChild(q *models.QuestionRecord, all []models.QuestionRecord) bool {
	for i := range all {
		if q.IsParentOf(all[i].QuestionNumber) {
			return true
		}
	}
	return false
}

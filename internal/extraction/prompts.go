package extraction

// The extraction prompts enumerate every field with its exact spelling and
// pin down the labeling convention for hierarchical question numbers. The
// model otherwise drifts between "1b", "1(b)" and "1(b)(i)" across chunks,
// which breaks the merge key.

const questionPrompt = `You are given a range of pages from an exam question paper as a PDF.
Extract every gradable question part on these pages as a JSON array. Respond with the
JSON array only.

Each element must have exactly these fields:
  "questionNumber": string. Hierarchical label. Top-level parts are letters in
      parentheses, sub-parts are lowercase roman numerals in parentheses, always fully
      qualified: "3", "3(a)", "3(a)(ii)". Never emit "1(b)" when the paper means
      "1(b)(i)" - if a part has sub-parts, every extracted leaf must carry its explicit
      roman-numeral suffix.
  "text": string. The full question text. Include inline option lists. If the question
      refers to a figure or diagram, embed a short bracketed description, e.g.
      "[Figure: circuit with two resistors in series]".
  "marks": integer or null. The marks for this part alone, from the right margin.
      Use null when no marks are printed.
  "topic": string. One of: "Algebra", "Geometry", "Trigonometry", "Calculus",
      "Statistics", "Probability", "Mechanics", "Number", "General".
  "difficulty": string. One of "easy", "medium", "hard". Judge from marks and depth.
  "hasImage": boolean. True only when answering requires a printed figure or diagram.
  "figureRegion": object or null. Required when hasImage is true. Fields "ymin",
      "xmin", "ymax", "xmax" on a 0-1000 scale over the page, and "page", the
      zero-based page number WITHIN THESE PAGES where the figure appears.

Extract question parts only. Skip instructions, formula sheets and blank pages.`

const schemePrompt = `You are given a range of pages from an exam mark scheme as a PDF.
Extract the marking guidance for every question part on these pages as a JSON array.
Respond with the JSON array only.

Each element must have exactly these fields:
  "questionNumber": string. Hierarchical label matching the question paper: top-level
      parts are letters in parentheses, sub-parts are lowercase roman numerals in
      parentheses, always fully qualified, e.g. "3(a)(ii)". Never emit "1(b)" when the
      scheme means "1(b)(i)".
  "markScheme": string. The complete marking guidance for this part, including mark
      codes (M1, A1, B1) and accepted alternatives.
  "examinerRemarks": string. Examiner report commentary for this part if printed,
      otherwise "".

Extract marking entries only. Skip grade boundaries and administrative pages.`

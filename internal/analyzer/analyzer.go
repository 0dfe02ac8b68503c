// Package analyzer performs structural analysis of extracted document text:
// page boundaries, paragraphs, heading candidates, lists, tables, and an
// overall text-quality assessment. All functions are pure and deterministic;
// the same text always yields the same Structure.
//
// Attribution is best-effort: headings and page boundaries are heuristic and
// the downstream chunker treats them as hints, never as hard guarantees.
package analyzer

import (
	"regexp"
	"strings"
	"unicode"
)

// QualityScore grades how usable the extracted text is for chunking.
type QualityScore string

// Quality grades from unusable to clean.
const (
	QualityPoor      QualityScore = "poor"
	QualityFair      QualityScore = "fair"
	QualityGood      QualityScore = "good"
	QualityExcellent QualityScore = "excellent"
)

// minParagraphLength is the minimum trimmed length for a text block to count
// as a paragraph. Shorter blocks are usually page furniture (page numbers,
// running headers).
const minParagraphLength = 20

// maxHeadingLength is the maximum trimmed length of a heading candidate.
const maxHeadingLength = 100

// minHeadingLength filters out trivially short heading candidates.
const minHeadingLength = 5

// Page is one detected (or inferred) page span in the source text.
type Page struct {
	// Number is the 1-based page number.
	Number int
	// Start and End are character offsets into the source text, [Start, End).
	Start int
	End   int
}

// Paragraph is one detected paragraph span.
type Paragraph struct {
	// Index is the 0-based paragraph ordinal.
	Index int
	// Start and End are character offsets into the source text, [Start, End).
	Start int
	End   int
	// Text is the trimmed paragraph content.
	Text string
}

// Heading is a detected section-heading candidate.
type Heading struct {
	// Text is the trimmed heading content.
	Text string
	// Level is the heading depth: "1.2.3" prefixed headings get level 3,
	// everything else level 1.
	Level int
	// Start and End are character offsets into the source text.
	Start int
	End   int
}

// List is a detected run of bullet / numbered / lettered list lines.
type List struct {
	// Start and End are character offsets into the source text.
	Start int
	End   int
	// Items is the number of list lines in the run.
	Items int
}

// Table is a detected run of delimiter-aligned lines.
type Table struct {
	// Start and End are character offsets into the source text.
	Start int
	End   int
	// Rows is the number of table lines in the run.
	Rows int
}

// Quality is the overall text-quality assessment.
type Quality struct {
	// Score grades the text from poor to excellent.
	Score QualityScore
	// Issues lists human-readable problems found during assessment.
	Issues []string
}

// Structure is the full structural analysis of one document's text.
type Structure struct {
	// Pages are the detected or proportionally inferred page spans.
	Pages []Page
	// Paragraphs are the detected paragraph spans in offset order.
	Paragraphs []Paragraph
	// Headings are the detected heading candidates in offset order.
	Headings []Heading
	// Lists are the detected list runs in offset order.
	Lists []List
	// Tables are the detected table runs in offset order.
	Tables []Table
	// Quality is the overall text-quality assessment.
	Quality Quality
}

// pageBreakRe matches runs of two or more blank lines (page separators).
var pageBreakRe = regexp.MustCompile(`\n[ \t]*\n[ \t]*\n(?:[ \t]*\n)*`)

// paragraphBreakRe matches runs of one or more blank lines (paragraph separators).
var paragraphBreakRe = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)*`)

// numericPrefixRe matches dotted numeric heading prefixes like "1.", "2.3", "1.2.3".
var numericPrefixRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.)]?\s`)

// listLineRe matches bullet, numbered, lettered, and roman-numeral list prefixes.
var listLineRe = regexp.MustCompile(`^\s*(?:[-*•–]|\d{1,3}[.)]|[a-zA-Z][.)]|(?:[ivxIVX]{1,6})[.)])\s+\S`)

// tableFieldRe splits a line into delimiter-separated fields: two or more
// spaces, a tab, or a pipe.
var tableFieldRe = regexp.MustCompile(`\s{2,}|\t|\|`)

// Analyze runs the full structural analysis over text. pageCount is the page
// count reported by the extractor and is used as a fallback when blank-line
// page segmentation finds fewer segments than pages.
func Analyze(text string, pageCount int) *Structure {
	s := &Structure{
		Pages:      detectPages(text, pageCount),
		Paragraphs: detectParagraphs(text),
		Quality:    assessQuality(text),
	}
	s.Headings = detectHeadings(s.Paragraphs)
	s.Lists = detectLists(text)
	s.Tables = detectTables(text)
	return s
}

// detectPages splits text on runs of ≥2 blank lines. If that yields fewer
// segments than the known page count, it falls back to slicing the text into
// pageCount equal-length windows.
func detectPages(text string, pageCount int) []Page {
	if pageCount < 1 {
		pageCount = 1
	}

	var pages []Page
	breaks := pageBreakRe.FindAllStringIndex(text, -1)
	start := 0
	num := 1
	for _, br := range breaks {
		if br[0] > start {
			pages = append(pages, Page{Number: num, Start: start, End: br[0]})
			num++
		}
		start = br[1]
	}
	if start < len(text) {
		pages = append(pages, Page{Number: num, Start: start, End: len(text)})
	}

	if len(pages) >= pageCount {
		return pages
	}

	// Fewer separators than pages: proportional slicing.
	pages = pages[:0]
	if len(text) == 0 {
		return []Page{{Number: 1, Start: 0, End: 0}}
	}
	window := len(text) / pageCount
	if window == 0 {
		window = 1
	}
	for i := 0; i < pageCount; i++ {
		start := i * window
		end := start + window
		if i == pageCount-1 || end > len(text) {
			end = len(text)
		}
		if start >= len(text) {
			break
		}
		pages = append(pages, Page{Number: i + 1, Start: start, End: end})
	}
	return pages
}

// detectParagraphs splits text on blank-line runs and discards blocks under
// minParagraphLength.
func detectParagraphs(text string) []Paragraph {
	var paras []Paragraph
	breaks := paragraphBreakRe.FindAllStringIndex(text, -1)

	idx := 0
	emit := func(start, end int) {
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if len(trimmed) < minParagraphLength {
			return
		}
		// Tighten offsets to the trimmed content.
		lead := strings.Index(raw, trimmed[:1])
		if lead < 0 {
			lead = 0
		}
		paras = append(paras, Paragraph{
			Index: idx,
			Start: start + lead,
			End:   start + lead + len(trimmed),
			Text:  trimmed,
		})
		idx++
	}

	start := 0
	for _, br := range breaks {
		if br[0] > start {
			emit(start, br[0])
		}
		start = br[1]
	}
	if start < len(text) {
		emit(start, len(text))
	}
	return paras
}

// detectHeadings picks heading candidates out of the paragraph list:
// short, non-trivially long, and not ending in a sentence terminator.
func detectHeadings(paras []Paragraph) []Heading {
	var headings []Heading
	for _, p := range paras {
		t := p.Text
		if len(t) >= maxHeadingLength || len(t) <= minHeadingLength {
			continue
		}
		if strings.ContainsRune(t, '\n') {
			continue
		}
		last := t[len(t)-1]
		if last == '.' || last == '!' || last == '?' || last == ';' || last == ',' {
			continue
		}
		headings = append(headings, Heading{
			Text:  t,
			Level: headingLevel(t),
			Start: p.Start,
			End:   p.End,
		})
	}
	return headings
}

// headingLevel derives the heading depth from a dotted numeric prefix:
// "1 Intro" → 1, "1.2 Detail" → 2, "1.2.3 Edge" → 3. Unnumbered headings
// are level 1.
func headingLevel(text string) int {
	m := numericPrefixRe.FindStringSubmatch(text)
	if m == nil {
		return 1
	}
	return strings.Count(m[1], ".") + 1
}

// detectLists finds contiguous runs of ≥2 list-prefixed lines. A blank line
// terminates the run.
func detectLists(text string) []List {
	var lists []List
	var runStart, runEnd, runItems int

	flush := func() {
		if runItems >= 2 {
			lists = append(lists, List{Start: runStart, End: runEnd, Items: runItems})
		}
		runItems = 0
	}

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		content := strings.TrimRight(line, "\n")
		if listLineRe.MatchString(content) {
			if runItems == 0 {
				runStart = offset
			}
			runEnd = offset + len(content)
			runItems++
		} else if strings.TrimSpace(content) == "" || runItems > 0 {
			flush()
		}
		offset += len(line)
	}
	flush()
	return lists
}

// detectTables finds runs of ≥2 consecutive lines that each split into ≥2
// fields on multi-space, tab, or pipe delimiters.
func detectTables(text string) []Table {
	var tables []Table
	var runStart, runEnd, runRows int

	flush := func() {
		if runRows >= 2 {
			tables = append(tables, Table{Start: runStart, End: runEnd, Rows: runRows})
		}
		runRows = 0
	}

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		content := strings.TrimRight(line, "\n")
		if isTableLine(content) {
			if runRows == 0 {
				runStart = offset
			}
			runEnd = offset + len(content)
			runRows++
		} else {
			flush()
		}
		offset += len(line)
	}
	flush()
	return tables
}

// isTableLine reports whether a line splits into at least two non-empty
// delimiter-separated fields.
func isTableLine(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	fields := 0
	for _, f := range tableFieldRe.Split(line, -1) {
		if strings.TrimSpace(f) != "" {
			fields++
		}
	}
	return fields >= 2
}

// assessQuality grades the text and collects issue flags.
//
// poor:      near-empty text or no readable alphabetic runs
// fair:      special-character density >10% or whitespace density >50%
// good:      readable but short or slightly noisy
// excellent: long, clean prose
func assessQuality(text string) Quality {
	q := Quality{Issues: []string{}}

	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 50 {
		q.Score = QualityPoor
		q.Issues = append(q.Issues, "text is empty or near-empty")
		return q
	}

	var letters, digits, spaces, special, alphaRun, maxAlphaRun int
	for _, r := range trimmed {
		switch {
		case unicode.IsLetter(r):
			letters++
			alphaRun++
			if alphaRun > maxAlphaRun {
				maxAlphaRun = alphaRun
			}
		case unicode.IsDigit(r):
			digits++
			alphaRun = 0
		case unicode.IsSpace(r):
			spaces++
			alphaRun = 0
		case !unicode.IsPunct(r) && !unicode.IsSymbol(r):
			alphaRun = 0
		default:
			special++
			alphaRun = 0
		}
	}

	if maxAlphaRun < 3 || letters == 0 {
		q.Score = QualityPoor
		q.Issues = append(q.Issues, "no readable alphabetic runs, possibly binary or scanned content")
		return q
	}

	total := float64(len([]rune(trimmed)))
	specialDensity := float64(special) / total
	spaceDensity := float64(spaces) / total

	if specialDensity > 0.10 {
		q.Issues = append(q.Issues, "high special-character density")
	}
	if spaceDensity > 0.50 {
		q.Issues = append(q.Issues, "high whitespace density, possible layout artifacts")
	}
	if len(q.Issues) > 0 {
		q.Score = QualityFair
		return q
	}

	if len(trimmed) >= 1000 && specialDensity <= 0.02 && spaceDensity <= 0.30 {
		q.Score = QualityExcellent
	} else {
		q.Score = QualityGood
	}
	return q
}

// PageAt returns the page containing the given character offset, or nil when
// the offset falls outside every page span.
func (s *Structure) PageAt(offset int) *Page {
	for i := range s.Pages {
		if offset >= s.Pages[i].Start && offset < s.Pages[i].End {
			return &s.Pages[i]
		}
	}
	// Offsets inside page separators attribute to the preceding page.
	for i := len(s.Pages) - 1; i >= 0; i-- {
		if offset >= s.Pages[i].Start {
			return &s.Pages[i]
		}
	}
	return nil
}

// ParagraphAt returns the paragraph containing the given character offset,
// or nil when no paragraph contains it.
func (s *Structure) ParagraphAt(offset int) *Paragraph {
	for i := range s.Paragraphs {
		if offset >= s.Paragraphs[i].Start && offset < s.Paragraphs[i].End {
			return &s.Paragraphs[i]
		}
	}
	return nil
}

// HeadingBefore returns the nearest heading whose span starts at or before
// offset, or nil when none precedes it.
func (s *Structure) HeadingBefore(offset int) *Heading {
	var best *Heading
	for i := range s.Headings {
		if s.Headings[i].Start <= offset {
			best = &s.Headings[i]
		} else {
			break
		}
	}
	return best
}

// ListAt reports whether the given offset falls inside a detected list run.
func (s *Structure) ListAt(offset int) bool {
	for _, l := range s.Lists {
		if offset >= l.Start && offset < l.End {
			return true
		}
	}
	return false
}

// IsHeadingSpan reports whether [start, end) coincides with a detected heading.
func (s *Structure) IsHeadingSpan(start, end int) bool {
	for _, h := range s.Headings {
		if start >= h.Start && end <= h.End+1 {
			return true
		}
	}
	return false
}

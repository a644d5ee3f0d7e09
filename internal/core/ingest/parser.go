package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// Section is one titled question/answer unit extracted from a document.
// Raw keeps the untouched section body for debugging.
type Section struct {
	Title    string
	Question string
	Answer   string
	Raw      string
}

// Heading line: "# 자기소개서 1 – [입행 목표 및 성장 계획]". Both en dash and
// hyphen appear in the wild.
var headingRE = regexp.MustCompile(`(?m)^#\s*자기소개서\s+\d+\s*[–-]\s*\[(.+?)\]\s*$`)

// Label line: "**질문**" or "**답변**" on its own line.
var labelRE = regexp.MustCompile(`(?m)^\s*\*\*(질문|답변)\*\*\s*$`)

var yearRE = regexp.MustCompile(`\b(20\d{2})\b`)

// ParseSections splits a fixed-convention markdown document into its titled
// sections. Each heading owns the text up to the next heading (or document
// end). A document with no headings yields no sections. Parsing is pure;
// re-running it on the same input is safe.
func ParseSections(md string) []Section {
	var sections []Section
	headings := headingRE.FindAllStringSubmatchIndex(md, -1)
	for i, h := range headings {
		bodyStart := h[1]
		bodyEnd := len(md)
		if i+1 < len(headings) {
			bodyEnd = headings[i+1][0]
		}
		title := strings.TrimSpace(md[h[2]:h[3]])
		body := strings.TrimSpace(md[bodyStart:bodyEnd])

		question, answer := extractBlocks(body)
		sections = append(sections, Section{
			Title:    title,
			Question: question,
			Answer:   answer,
			Raw:      body,
		})
	}
	return sections
}

// extractBlocks pulls the 질문/답변 blocks out of a section body. Each label
// owns the text up to the next label (or body end). A body with no labels at
// all is kept whole as the answer so content is never silently dropped.
func extractBlocks(body string) (question, answer string) {
	labels := labelRE.FindAllStringSubmatchIndex(body, -1)
	if len(labels) == 0 {
		return "", strings.TrimSpace(body)
	}
	for i, lab := range labels {
		name := body[lab[2]:lab[3]]
		start := lab[1]
		end := len(body)
		if i+1 < len(labels) {
			end = labels[i+1][0]
		}
		text := strings.TrimSpace(body[start:end])
		switch name {
		case "질문":
			question = text
		case "답변":
			answer = text
		}
	}
	return question, answer
}

// ExtractYearCandidates returns every 4-digit token in 2000..2099 found in
// text, in order of appearance, duplicates included. It is a hint source;
// the pipeline decides which candidate (if any) becomes the year.
func ExtractYearCandidates(text string) []int {
	var out []int
	for _, m := range yearRE.FindAllString(text, -1) {
		y, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if y >= 2000 && y <= 2099 {
			out = append(out, y)
		}
	}
	return out
}

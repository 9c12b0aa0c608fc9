package extract

import "regexp"

var htmlTagRe = regexp.MustCompile(`(?i)<[a-z]+[^>]*>`)

const corruptionSampleSize = 2000

// contentStats summarizes a bounded sample of raw document text.
type contentStats struct {
	PrintableRatio float64
	ControlRatio   float64
	HasHTMLTags    bool
}

func sampleStats(text string) contentStats {
	sample := []rune(text)
	if len(sample) > corruptionSampleSize {
		sample = sample[:corruptionSampleSize]
	}
	if len(sample) == 0 {
		return contentStats{}
	}

	printable := 0
	control := 0
	for _, r := range sample {
		if (r >= 32 && r <= 126) || r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			control++
		}
	}
	total := float64(len(sample))
	return contentStats{
		PrintableRatio: float64(printable) / total,
		ControlRatio:   float64(control) / total,
		HasHTMLTags:    htmlTagRe.MatchString(string(sample)),
	}
}

// looksCorrupted flags mojibake and binary junk before any model call:
// printable ratio below 0.5 or control-character ratio above 0.15 on the
// first 2000 characters.
func looksCorrupted(text string) bool {
	if text == "" {
		return false
	}
	stats := sampleStats(text)
	return stats.PrintableRatio < 0.5 || stats.ControlRatio > 0.15
}

// validHTMLSample is the post-fetch validation variant: requires tags,
// printable ratio above 0.6 and control ratio below 0.1.
func validHTMLSample(text string) bool {
	stats := sampleStats(text)
	return stats.HasHTMLTags && stats.PrintableRatio > 0.6 && stats.ControlRatio < 0.1
}

package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op identifies the kind of a diff opcode.
type Op string

const (
	OpEqual   Op = "equal"
	OpInsert  Op = "insert"
	OpDelete  Op = "delete"
	OpReplace Op = "replace"
)

// Opcode describes one aligned region between the old and new line
// sequences. Ranges are 0-based, half-open: old lines [OldStart, OldEnd)
// correspond to new lines [NewStart, NewEnd).
type Opcode struct {
	Op       Op
	OldStart int
	OldEnd   int
	NewStart int
	NewEnd   int
}

// SplitLines splits content into newline-delimited lines without dropping
// a trailing empty segment, so joining with "\n" reconstructs the input.
func SplitLines(content string) []string {
	return strings.Split(content, "\n")
}

// Opcodes aligns two texts line by line and returns the opcode sequence.
// Adjacent delete+insert runs between matching regions collapse into a
// single replace, so each gap yields exactly one non-equal opcode.
func Opcodes(oldText, newText string) []Opcode {
	oldEnc, newEnc := encodeLines(SplitLines(oldText), SplitLines(newText))
	// The encoded strings carry one rune per line, so a character diff over
	// them is a line diff over the originals.
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldEnc, newEnc, false)

	ops := make([]Opcode, 0, len(diffs))
	oldPos, newPos := 0, 0
	pendingDel, pendingIns := 0, 0

	flush := func() {
		if pendingDel == 0 && pendingIns == 0 {
			return
		}
		op := Opcode{
			OldStart: oldPos,
			OldEnd:   oldPos + pendingDel,
			NewStart: newPos,
			NewEnd:   newPos + pendingIns,
		}
		switch {
		case pendingDel > 0 && pendingIns > 0:
			op.Op = OpReplace
		case pendingDel > 0:
			op.Op = OpDelete
		default:
			op.Op = OpInsert
		}
		ops = append(ops, op)
		oldPos += pendingDel
		newPos += pendingIns
		pendingDel, pendingIns = 0, 0
	}

	for _, d := range diffs {
		lines := len([]rune(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			ops = append(ops, Opcode{
				Op:       OpEqual,
				OldStart: oldPos,
				OldEnd:   oldPos + lines,
				NewStart: newPos,
				NewEnd:   newPos + lines,
			})
			oldPos += lines
			newPos += lines
		case diffmatchpatch.DiffDelete:
			pendingDel += lines
		case diffmatchpatch.DiffInsert:
			pendingIns += lines
		}
	}
	flush()
	return ops
}

// encodeLines interns each distinct line as a single rune so the character
// diff below operates on whole lines. Terminators are not part of a line,
// so the same text matches regardless of what follows it.
func encodeLines(oldLines, newLines []string) (string, string) {
	index := make(map[string]rune, len(oldLines)+len(newLines))
	next := rune(1)
	encode := func(lines []string) string {
		var b strings.Builder
		for _, line := range lines {
			r, ok := index[line]
			if !ok {
				r = next
				index[line] = r
				next++
				if next == 0xD800 {
					// skip the surrogate range, invalid as runes
					next = 0xE000
				}
			}
			b.WriteRune(r)
		}
		return b.String()
	}
	return encode(oldLines), encode(newLines)
}

// SimilarityRatio reports how similar two strings are on a character level,
// in [0,1]. 1.0 means identical, 0.0 means nothing in common.
func SimilarityRatio(oldText, newText string) float64 {
	if oldText == newText {
		return 1.0
	}
	total := len(oldText) + len(newText)
	if total == 0 {
		return 1.0
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	matched := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += len(d.Text)
		}
	}
	return 2.0 * float64(matched) / float64(total)
}

package csv

import (
	"bufio"
	"io"
	"strings"

	"hermannm.dev/wrap"
)

var DefaultDelimitersToCheck = []rune{',', ';', '\t', '|'}

const delimiterSampleRows = 20

// DeduceFieldDelimiter samples the first rows of the file and picks the delimiter that splits them
// most consistently. The read position is reset to the start of the file before returning.
func DeduceFieldDelimiter(
	csvFile io.ReadSeeker,
	maxRowsToCheck int,
	delimitersToCheck []rune,
) (delimiter rune, err error) {
	defer func() {
		if _, seekErr := csvFile.Seek(0, io.SeekStart); seekErr != nil && err == nil {
			err = wrap.Error(seekErr, "failed to reset CSV file after deducing field delimiter")
		}
	}()

	if len(delimitersToCheck) == 0 {
		delimitersToCheck = DefaultDelimitersToCheck
	}

	var sample []string
	scanner := bufio.NewScanner(csvFile)
	for len(sample) < maxRowsToCheck && scanner.Scan() {
		if line := scanner.Text(); strings.TrimSpace(line) != "" {
			sample = append(sample, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, wrap.Error(err, "failed to sample CSV rows")
	}

	best := delimiterScore{delimiter: delimitersToCheck[0]}
	for _, candidate := range delimitersToCheck {
		score := scoreDelimiter(candidate, sample)
		if score.betterThan(best) {
			best = score
		}
	}
	return best.delimiter, nil
}

type delimiterScore struct {
	delimiter  rune
	consistent bool
	minCount   int
}

func scoreDelimiter(delimiter rune, lines []string) delimiterScore {
	score := delimiterScore{delimiter: delimiter, consistent: len(lines) > 0, minCount: -1}
	first := -1
	for _, line := range lines {
		count := strings.Count(line, string(delimiter))
		if first == -1 {
			first = count
		} else if count != first {
			score.consistent = false
		}
		if score.minCount == -1 || count < score.minCount {
			score.minCount = count
		}
	}
	if score.minCount <= 0 {
		score.consistent = false
		score.minCount = 0
	}
	return score
}

// A delimiter found the same number of times on every row beats one that varies; ties go to the
// one that splits rows into more fields.
func (score delimiterScore) betterThan(other delimiterScore) bool {
	if score.consistent != other.consistent {
		return score.consistent
	}
	return score.minCount > other.minCount
}

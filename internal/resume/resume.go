package resume

import (
	"os"
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"
)

// pageHeader matches the page-block headers that structure the output
// document. The set of matched numbers IS the resumption checkpoint - there
// is no separate metadata file.
var pageHeader = regexp.MustCompile(`(?m)^## Page (\d+)`)

// CompletedPages scans a prior output file and returns the set of page
// numbers already written. A missing file means a fresh start; a read failure
// is non-fatal and degrades to "nothing completed" so a damaged file never
// blocks a re-run.
func CompletedPages(outputPath string) map[int]struct{} {
	completed := make(map[int]struct{})

	data, err := os.ReadFile(outputPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", outputPath).Msg("could not read existing output, treating all pages as pending")
		}
		return completed
	}

	for _, m := range pageHeader.FindAllSubmatch(data, -1) {
		n, err := strconv.Atoi(string(m[1]))
		if err != nil {
			continue
		}
		completed[n] = struct{}{}
	}
	return completed
}

package perplexity

import (
	"fmt"
	"strings"

	"github.com/calmlysettled/relocation-gateway/internal/domain"
)

const systemPrompt = `You help people who just moved settle into a new area.
Answer with valid JSON only, no markdown. The JSON is an object whose keys are
the requested categories and whose values are arrays of businesses with the
fields name, address, description, phone, website, features (array of short
strings), rating, latitude, longitude. Use only businesses that exist.`

func userPrompt(lat, lng float64, categories []string, mode domain.Mode) string {
	focus := "well-established local favorites"
	if mode == domain.ModePopular {
		focus = "places that are currently popular or trending, including recent openings"
	}
	return fmt.Sprintf(
		"Location: %.5f, %.5f. Categories: %s. List up to 6 %s per category within about 10 miles.",
		lat, lng, strings.Join(categories, "; "), focus,
	)
}

package search

import (
	"fmt"

	"github.com/BTreeMap/SearchPipe/internal/models"
)

// JobFacets lists the refiners the job postings index supports.
var JobFacets = []string{"business_title", "agency", "work_location"}

// JobToSearchHit maps a NYC job posting document into a search hit.
// The description always ends with an ellipsis, matching how postings are previewed.
func JobToSearchHit(job models.ProviderDocument) models.SearchHit {
	from, _ := FloatField(job, "salary_range_from")
	to, _ := FloatField(job, "salary_range_to")

	title := fmt.Sprintf("%s at %s, %.2f to %.2f",
		StringField(job, "business_title"), StringField(job, "agency"), from, to)

	desc := []rune(StringField(job, "job_description"))
	if len(desc) > DescriptionLimit {
		desc = desc[:DescriptionLimit]
	}

	return models.SearchHit{
		Key:         StringField(job, "id"),
		Title:       title,
		Description: string(desc) + "...",
	}
}

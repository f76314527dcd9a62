package registry

import (
	"sort"

	"github.com/ocelot-cloud/captn-updater/internal/model"
	"github.com/ocelot-cloud/captn-updater/internal/version"
)

func parseTagVersion(tag string) (version.Version, bool) {
	return version.Parse(tag)
}

// sortDescending orders candidates by parsed Version, highest first, as
// required by §4.3's ordering guarantee.
func sortDescending(cs []model.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		return version.Compare(cs[i].Version, cs[j].Version) == version.Greater
	})
}

package specfile

import (
	"github.com/ralt/rpmci/internal/models"
	"github.com/sirupsen/logrus"
)

// Placeholder tokens recognised in spec files
const (
	TokenVersion     = "@VERSION@"
	TokenRelease     = "@RELEASE@"
	TokenBuildNumber = "@BUILD_NUMBER@"
	TokenBuildTag    = "@BUILD_TAG@"
	TokenBuildURL    = "@BUILD_URL@"
	TokenJobName     = "@JOB_NAME@"
)

// ExpandBuildInfo substitutes the CI build metadata tokens. Values are not
// validated; a spec without tokens is left untouched.
func ExpandBuildInfo(s *Spec, env models.CIEnv) int {
	replacements := []struct {
		token string
		value string
	}{
		{TokenBuildNumber, env.BuildNumber},
		{TokenBuildTag, env.BuildTag},
		{TokenBuildURL, env.BuildURL},
		{TokenJobName, env.JobName},
	}

	total := 0
	for _, r := range replacements {
		if n := s.Replace(r.token, r.value); n > 0 {
			logrus.Debugf("Replaced %d occurrence(s) of %s", n, r.token)
			total += n
		}
	}
	return total
}

package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Validate reports every problem of cfg at once. Host apiurls are expected to
// be normalized already.
func Validate(cfg *Config) error {
	var result *multierror.Error

	seen := make(map[string]bool, len(cfg.Hosts))
	for _, host := range cfg.Hosts {
		if seen[host.APIURL] {
			result = multierror.Append(result, fmt.Errorf("host %s is configured more than once", host.APIURL))
			continue
		}
		seen[host.APIURL] = true

		if err := host.Options().Validate(); err != nil {
			result = multierror.Append(result, err)
		}
		if host.Pass != "" && host.PassX != "" {
			log.Warnf("host %s has both pass and passx set, passx is used", host.APIURL)
		}
	}

	if cfg.General.APIURL != "" && !seen[cfg.General.APIURL] {
		result = multierror.Append(result, fmt.Errorf("general apiurl %s has no host section", cfg.General.APIURL))
	}

	return result.ErrorOrNil()
}

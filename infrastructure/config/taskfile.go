package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Zerg00s/SharePoint-Online-Manager-sub002/domain/task"
)

// ErrInvalidConfig marks configuration problems that are fatal before any
// pair starts.
var ErrInvalidConfig = errors.New("invalid task configuration")

// TaskFile is the YAML document describing one reconciliation run: the site
// pairs to process and the parameters governing how.
type TaskFile struct {
	Pairs      []task.SitePair      `yaml:"pairs"`
	Parameters *task.TaskParameters `yaml:"parameters"`
}

// LoadTaskFile reads and validates a task file. Parameters left unset fall
// back to defaults; an empty pair list or an unusable URL fails the load.
func LoadTaskFile(path string) (*TaskFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	var file TaskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks the task file and fills parameter defaults.
func (f *TaskFile) Validate() error {
	if len(f.Pairs) == 0 {
		return fmt.Errorf("%w: no site pairs defined", ErrInvalidConfig)
	}
	for i, pair := range f.Pairs {
		if err := validateSiteURL(pair.SourceURL); err != nil {
			return fmt.Errorf("%w: pair %d source: %v", ErrInvalidConfig, i+1, err)
		}
		if err := validateSiteURL(pair.TargetURL); err != nil {
			return fmt.Errorf("%w: pair %d target: %v", ErrInvalidConfig, i+1, err)
		}
	}

	if f.Parameters == nil {
		f.Parameters = task.DefaultParameters()
	}
	if err := f.Parameters.ValidateAndSetDefaults(task.DefaultApiConstraints()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func validateSiteURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("site URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("site URL %q unparseable: %v", raw, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("site URL %q must be absolute http(s)", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("site URL %q has no host", raw)
	}
	return nil
}

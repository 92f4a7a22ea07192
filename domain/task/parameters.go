package task

import "fmt"

// TaskParameters represents user-configurable run behavior. This is a domain
// value object; the API limits it is validated against live in
// ApiConstraints.
type TaskParameters struct {
	// Enumeration and probing
	PageSize       int     `json:"page_size" yaml:"page_size"`               // items per listing page
	CheckBatchSize int     `json:"check_batch_size" yaml:"check_batch_size"` // ids per multiplexed flag probe
	SizeThreshold  float64 `json:"size_threshold" yaml:"size_threshold"`     // target/source ratio below which a match is a size issue

	// Throttling
	MaxRetries        int     `json:"max_retries" yaml:"max_retries"`                 // attempt budget per call on throttled responses
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"` // client-side pacing, 0 disables

	// Permission audit scope
	AuditSitePermissions bool `json:"audit_site_permissions" yaml:"audit_site_permissions"`
	AuditListPermissions bool `json:"audit_list_permissions" yaml:"audit_list_permissions"`
	AuditItemPermissions bool `json:"audit_item_permissions" yaml:"audit_item_permissions"`
	IncludeInherited     bool `json:"include_inherited" yaml:"include_inherited"`
}

// DefaultParameters returns sensible default run parameters.
func DefaultParameters() *TaskParameters {
	return &TaskParameters{
		PageSize:             500,
		CheckBatchSize:       200,
		SizeThreshold:        0.5,
		MaxRetries:           5,
		RequestsPerSecond:    0,
		AuditSitePermissions: true,
		AuditListPermissions: true,
	}
}

// ApiConstraints defines the technical limits imposed by the SharePoint
// APIs. These are infrastructure limits, not user preferences.
type ApiConstraints struct {
	MinPageSize       int // minimum valid listing page size
	MaxPageSize       int // REST listing limit (5000)
	MaxCheckBatchSize int // ProcessQuery per-request action budget headroom
	MaxRetries        int // largest sane attempt budget
}

// DefaultApiConstraints returns the SharePoint API limits.
func DefaultApiConstraints() *ApiConstraints {
	return &ApiConstraints{
		MinPageSize:       1,
		MaxPageSize:       5000,
		MaxCheckBatchSize: 500,
		MaxRetries:        10,
	}
}

// Validate checks the parameters against API constraints. A validation
// failure is Configuration-Invalid: fatal to the whole run, before any pair
// starts.
func (p *TaskParameters) Validate(constraints *ApiConstraints) error {
	if p == nil {
		return fmt.Errorf("task parameters cannot be nil")
	}
	if constraints == nil {
		constraints = DefaultApiConstraints()
	}

	if p.PageSize < constraints.MinPageSize {
		return fmt.Errorf("page_size must be at least %d, got: %d", constraints.MinPageSize, p.PageSize)
	}
	if p.PageSize > constraints.MaxPageSize {
		return fmt.Errorf("page_size cannot exceed %d (SharePoint listing limit), got: %d", constraints.MaxPageSize, p.PageSize)
	}
	if p.CheckBatchSize < 1 {
		return fmt.Errorf("check_batch_size must be positive, got: %d", p.CheckBatchSize)
	}
	if p.CheckBatchSize > constraints.MaxCheckBatchSize {
		return fmt.Errorf("check_batch_size cannot exceed %d (ProcessQuery action limit), got: %d", constraints.MaxCheckBatchSize, p.CheckBatchSize)
	}
	if p.SizeThreshold < 0 || p.SizeThreshold > 1 {
		return fmt.Errorf("size_threshold must be within [0, 1], got: %v", p.SizeThreshold)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got: %d", p.MaxRetries)
	}
	if p.MaxRetries > constraints.MaxRetries {
		return fmt.Errorf("max_retries cannot exceed %d, got: %d", constraints.MaxRetries, p.MaxRetries)
	}
	if p.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative, got: %v", p.RequestsPerSecond)
	}

	return nil
}

// ValidateAndSetDefaults fills zero values with defaults, then validates.
func (p *TaskParameters) ValidateAndSetDefaults(constraints *ApiConstraints) error {
	if p == nil {
		return fmt.Errorf("task parameters cannot be nil")
	}
	defaults := DefaultParameters()
	if p.PageSize == 0 {
		p.PageSize = defaults.PageSize
	}
	if p.CheckBatchSize == 0 {
		p.CheckBatchSize = defaults.CheckBatchSize
	}
	if p.SizeThreshold == 0 {
		p.SizeThreshold = defaults.SizeThreshold
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = defaults.MaxRetries
	}
	return p.Validate(constraints)
}

package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags holds runtime toggles for optional front-end and worker behaviour.
// Every flag can be overridden with FEATURE_<NAME>=true|false.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// === Terminal front-end ===
	FeatureCLIColor        = "cli.color"         // Colour averages (green >= 7, red below)
	FeatureCLILegacyGrades = "cli.legacy_grades" // Expose the flat-grades endpoint
	FeatureCLIExport       = "cli.export"        // XLSX roster export command

	// === Worker ===
	FeatureReportCache = "report.cache" // Publish the report to Redis
	FeatureReportHTTP  = "report.http"  // Serve the report over HTTP
)

// LoadFeatureFlags creates the default flag set and applies environment overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{Name: FeatureCLIColor, Description: "Coloured averages when stdout is a terminal", Enabled: true},
		{Name: FeatureCLILegacyGrades, Description: "Flat grade endpoint (PUT /{id}/notas)", Enabled: true},
		{Name: FeatureCLIExport, Description: "Export the roster as an XLSX workbook", Enabled: true},
		{Name: FeatureReportCache, Description: "Cache the latest roster report in Redis", Enabled: true},
		{Name: FeatureReportHTTP, Description: "Expose the roster report over HTTP", Enabled: true},
	}
	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment applies FEATURE_<NAME> overrides.
// Example: FEATURE_CLI_COLOR=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "cli.legacy_grades" -> "FEATURE_CLI_LEGACY_GRADES"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether the named feature is on. Unknown names are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled
}

// EnableFeature turns a feature on.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.set(featureName, true)
}

// DisableFeature turns a feature off.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.set(featureName, false)
}

func (ff *FeatureFlags) set(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.Enabled = enabled
	return nil
}

// GetAllFeatures returns copies of all flags sorted by name.
func (ff *FeatureFlags) GetAllFeatures() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		result = append(result, *f)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// --- Errors ---

// ErrFeatureNotFound is returned when toggling an unknown flag.
var ErrFeatureNotFound = &FeatureFlagError{Message: "feature not found"}

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}

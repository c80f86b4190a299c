package signature

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"

	"github.com/trustplane/hostsentry/internal/model"
)

// Repository loads signature sets from JSON documents. Loading never fails:
// any problem with the source is logged and the built-in default set is
// returned instead, so the engine stays usable with zero detections. A load
// failure is all-or-nothing per source, never a partial merge.
type Repository struct {
	logger *slog.Logger
	schema *gojsonschema.Schema
}

// NewRepository creates a signature repository. The embedded document schema
// is compiled once here.
func NewRepository(logger *slog.Logger) (*Repository, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(signatureSchema))
	if err != nil {
		return nil, fmt.Errorf("compile signature schema: %w", err)
	}
	return &Repository{
		logger: logger,
		schema: schema,
	}, nil
}

// Load reads the signature document at path. An empty path searches the
// default candidate locations; no candidate at all is a valid signature-less
// run. Missing file, unreadable file, malformed JSON, or a schema violation
// all fall back to the default set with a warning.
func (r *Repository) Load(path string) *model.SignatureSet {
	if path == "" {
		path = findDefaultPath()
		if path == "" {
			r.logger.Debug("No signature file found, using built-in defaults")
			return model.DefaultSignatureSet()
		}
	}

	set, err := r.loadFile(path)
	if err != nil {
		r.logger.Warn("Failed to load signatures, using built-in defaults",
			"path", path,
			"error", err)
		return model.DefaultSignatureSet()
	}

	r.logger.Info("Signatures loaded",
		"path", path,
		"vm_processes", len(set.VMIndicators.Processes),
		"bios_keywords", len(set.VMIndicators.BIOSKeywords),
		"mac_vendors", len(set.VMIndicators.MACVendors),
		"remote_processes", len(set.RemoteIndicators.Processes),
		"remote_ports", len(set.RemoteIndicators.Ports),
		"screen_processes", len(set.ScreenShareIndicators.Processes))
	return set
}

// loadFile reads, schema-validates, and decodes one signature document.
// Weight and threshold keys absent from the document keep their coded
// defaults; absent list keys stay empty.
func (r *Repository) loadFile(path string) (*model.SignatureSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signature file: %w", err)
	}

	result, err := r.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var errors []string
		for _, desc := range result.Errors() {
			errors = append(errors, desc.String())
		}
		return nil, fmt.Errorf("signature document invalid: %v", errors)
	}

	set := model.DefaultSignatureSet()
	if err := json.Unmarshal(data, set); err != nil {
		return nil, fmt.Errorf("decode signature file: %w", err)
	}

	return set, nil
}

// findDefaultPath probes the conventional signature locations: working
// directory, then the executable's directory, then the system config dir.
func findDefaultPath() string {
	candidates := []string{"signatures.json"}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "signatures.json"))
	}
	candidates = append(candidates, "/etc/hostsentry/signatures.json")

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

package supervise

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	outputFormatJSONStringConstant          = "json"
	outputFormatYAMLStringConstant          = "yaml"
	unsupportedOutputFormatTemplateConstant = "unsupported output format: %s"
	yamlIndentConstant                      = 2
)

// OutputFormat selects how reports are rendered.
type OutputFormat string

// Supported output formats.
const (
	OutputFormatJSON OutputFormat = OutputFormat(outputFormatJSONStringConstant)
	OutputFormatYAML OutputFormat = OutputFormat(outputFormatYAMLStringConstant)
)

// ParseOutputFormat converts textual output formats.
func ParseOutputFormat(value string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case outputFormatJSONStringConstant:
		return OutputFormatJSON, nil
	case outputFormatYAMLStringConstant, "yml":
		return OutputFormatYAML, nil
	default:
		return "", fmt.Errorf(unsupportedOutputFormatTemplateConstant, value)
	}
}

// reportPrinter writes a stream of reports: one JSON object per line or a
// sequence of YAML documents.
type reportPrinter struct {
	jsonEncoder *json.Encoder
	yamlEncoder *yaml.Encoder
}

func newReportPrinter(format OutputFormat, writer io.Writer) *reportPrinter {
	if format == OutputFormatYAML {
		yamlEncoder := yaml.NewEncoder(writer)
		yamlEncoder.SetIndent(yamlIndentConstant)
		return &reportPrinter{yamlEncoder: yamlEncoder}
	}
	return &reportPrinter{jsonEncoder: json.NewEncoder(writer)}
}

func (printer *reportPrinter) Print(report any) error {
	if printer.yamlEncoder != nil {
		return printer.yamlEncoder.Encode(report)
	}
	return printer.jsonEncoder.Encode(report)
}

func (printer *reportPrinter) Close() error {
	if printer.yamlEncoder != nil {
		return printer.yamlEncoder.Close()
	}
	return nil
}

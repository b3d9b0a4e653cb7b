package formatter

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dlinter/dlin/internal/registry"
	"github.com/dlinter/dlin/internal/rules"
	tt "github.com/dlinter/dlin/internal/types"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"
	toolName     = "dlin"
	toolURI      = "https://github.com/dlinter/dlin"
)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	ShortDescription     sarifText     `json:"shortDescription"`
	FullDescription      *sarifText    `json:"fullDescription,omitempty"`
	DefaultConfiguration sarifRuleConf `json:"defaultConfiguration"`
	Properties           sarifProps    `json:"properties"`
}

type sarifRuleConf struct {
	Level string `json:"level"`
}

type sarifProps struct {
	Category string `json:"category"`
}

type sarifText struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID     string            `json:"ruleId"`
	RuleIndex  int               `json:"ruleIndex"`
	Level      string            `json:"level"`
	Message    sarifText         `json:"message"`
	Locations  []sarifLocation   `json:"locations"`
	Properties map[string]string `json:"properties,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
	Region           sarifRegion   `json:"region"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine,omitempty"`
}

// sarifLevel maps a severity onto the SARIF result levels.
func sarifLevel(s tt.Severity) string {
	switch s {
	case tt.SeverityError:
		return "error"
	case tt.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}

// sarifRules describes every known rule, in catalog order followed by the
// registry advisor.
func sarifRules() ([]sarifRule, map[string]int) {
	metas := append(rules.Default().Metas(), registry.Meta)
	out := make([]sarifRule, len(metas))
	index := make(map[string]int, len(metas))
	for i, m := range metas {
		out[i] = sarifRule{
			ID:                   m.ID,
			Name:                 m.Name,
			ShortDescription:     sarifText{Text: m.Description},
			DefaultConfiguration: sarifRuleConf{Level: sarifLevel(m.Severity)},
			Properties:           sarifProps{Category: m.Category.String()},
		}
		if m.Explanation != "" {
			out[i].FullDescription = &sarifText{Text: m.Explanation}
		}
		index[m.ID] = i
	}
	return out, index
}

func sarifURI(filename string) string {
	if filename == "" {
		return "Dockerfile"
	}
	return filepath.ToSlash(filename)
}

func (r *Reporter) reportSARIF(issues []tt.Issue) error {
	driverRules, index := sarifRules()

	results := make([]sarifResult, 0, len(issues))
	for _, issue := range issues {
		ruleIndex, ok := index[issue.Rule]
		if !ok {
			ruleIndex = -1
		}
		result := sarifResult{
			RuleID:    issue.Rule,
			RuleIndex: ruleIndex,
			Level:     sarifLevel(issue.Severity),
			Message:   sarifText{Text: issue.Message},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysical{
					ArtifactLocation: sarifArtifact{URI: sarifURI(issue.Filename)},
					Region: sarifRegion{
						StartLine: issue.Line,
						EndLine:   max(issue.EndLine, issue.Line),
					},
				},
			}},
		}
		if issue.Suggestion != "" {
			result.Properties = map[string]string{"suggestion": issue.Suggestion}
		}
		results = append(results, result)
	}

	log := sarifLog{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           toolName,
				InformationURI: toolURI,
				Rules:          driverRules,
			}},
			Results: results,
		}},
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(log); err != nil {
		return fmt.Errorf("failed to encode SARIF output: %w", err)
	}
	return nil
}

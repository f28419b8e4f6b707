package phase

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is the cheap-extractor summary written alongside every phase's
// Markdown artifact as <prefix>-<phase>.core.yaml. It counts structural
// markers rather than parsing the document semantically.
type Metadata struct {
	TotalRequirements int `yaml:"total_requirements"`
	TotalUserStories  int `yaml:"total_user_stories"`
	TotalEARSCriteria int `yaml:"total_ears_criteria"`
	TotalNFRs         int `yaml:"total_nfrs"`
	TotalComponents   int `yaml:"total_components"`
	TotalInterfaces   int `yaml:"total_interfaces"`
	TotalDiagrams     int `yaml:"total_diagrams"`
	TotalTasks        int `yaml:"total_tasks"`
	TotalSubtasks     int `yaml:"total_subtasks"`
	TotalMilestones   int `yaml:"total_milestones"`
	TotalDependencies int `yaml:"total_dependencies"`
}

// doc wraps Metadata under a top-level "metadata" key, matching the
// <phase>.core.yaml.metadata.* access pattern callers expect.
type doc struct {
	Metadata Metadata `yaml:"metadata"`
}

var (
	requirementHeadingRe = regexp.MustCompile(`(?m)^###\s+Requirement\b`)
	userStoryRe          = regexp.MustCompile(`(?i)\*\*User Story:\*\*`)
	earsRe               = regexp.MustCompile(`(?i)\b(WHEN|IF|WHERE|GIVEN)\b[^\n]*\bTHEN\b[^\n]*\bSHALL\b`)
	nfrRe                = regexp.MustCompile(`(?m)^###\s+(NFR|Non-Functional Requirement)\b`)
	componentHeadingRe   = regexp.MustCompile(`(?mi)^##\s+(Components?|Architecture)\b`)
	interfaceRe          = regexp.MustCompile(`(?mi)^###?\s+Interface\b`)
	diagramFenceRe       = regexp.MustCompile("```(mermaid|plantuml)")
	taskLineRe           = regexp.MustCompile(`(?m)^\s*-\s+\[[ xX]\]\s+\S`)
	subtaskLineRe        = regexp.MustCompile(`(?m)^\s{2,}-\s+\[[ xX]\]\s+\S`)
	milestoneRe          = regexp.MustCompile(`(?mi)^##\s+Milestone\b`)
	dependencyLineRe     = regexp.MustCompile(`(?mi)^\s*-\s+(Depends on|Dependency):`)
)

// ExtractMetadata counts structural markers in a phase's trimmed Markdown
// output. It never fails: an empty or unrelated document yields all zeros.
func ExtractMetadata(markdown string) Metadata {
	return Metadata{
		TotalRequirements: len(requirementHeadingRe.FindAllStringIndex(markdown, -1)),
		TotalUserStories:  len(userStoryRe.FindAllStringIndex(markdown, -1)),
		TotalEARSCriteria: len(earsRe.FindAllStringIndex(markdown, -1)),
		TotalNFRs:         len(nfrRe.FindAllStringIndex(markdown, -1)),
		TotalComponents:   len(componentHeadingRe.FindAllStringIndex(markdown, -1)),
		TotalInterfaces:   len(interfaceRe.FindAllStringIndex(markdown, -1)),
		TotalDiagrams:     len(diagramFenceRe.FindAllStringIndex(markdown, -1)),
		TotalTasks:        countTaskLines(markdown),
		TotalSubtasks:     len(subtaskLineRe.FindAllStringIndex(markdown, -1)),
		TotalMilestones:   len(milestoneRe.FindAllStringIndex(markdown, -1)),
		TotalDependencies: len(dependencyLineRe.FindAllStringIndex(markdown, -1)),
	}
}

// countTaskLines counts top-level "- [ ]"/"- [x]" lines, excluding the
// more-indented lines already counted as subtasks.
func countTaskLines(markdown string) int {
	count := 0
	for _, line := range strings.Split(markdown, "\n") {
		if taskLineRe.MatchString(line) && !subtaskLineRe.MatchString(line) {
			count++
		}
	}
	return count
}

// ToYAML renders Metadata under the "metadata" key as deterministic YAML.
func (m Metadata) ToYAML() (string, error) {
	data, err := yaml.Marshal(doc{Metadata: m})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

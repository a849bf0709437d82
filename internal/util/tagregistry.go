// Package util provides the DICOM tag registry shared by the reader, the
// classifier and the sort layout templates.
package util

import (
	"fmt"
	"strings"

	"github.com/suyashkumar/dicom/pkg/tag"
)

// TagScope represents the DICOM hierarchy level a tag describes.
type TagScope int

const (
	// ScopePatient indicates tags that are consistent across all files of a patient.
	ScopePatient TagScope = iota
	// ScopeStudy indicates tags that are consistent within a study.
	ScopeStudy
	// ScopeSeries indicates tags that are consistent within a series.
	ScopeSeries
	// ScopeImage indicates tags that vary per file.
	ScopeImage
	// ScopeStructureSet indicates RT structure set tags, usually nested in sequences.
	ScopeStructureSet
)

// String returns the string representation of a TagScope.
func (s TagScope) String() string {
	switch s {
	case ScopePatient:
		return "Patient"
	case ScopeStudy:
		return "Study"
	case ScopeSeries:
		return "Series"
	case ScopeImage:
		return "Image"
	case ScopeStructureSet:
		return "StructureSet"
	default:
		return "Unknown"
	}
}

// TagInfo contains information about a DICOM tag, including its scope.
type TagInfo struct {
	Name  string
	Tag   tag.Tag
	Scope TagScope
}

// RT structure set tags, spelled out so they do not depend on dictionary keywords.
var (
	TagStructureSetROISequence            = tag.Tag{Group: 0x3006, Element: 0x0020}
	TagReferencedFrameOfReferenceSequence = tag.Tag{Group: 0x3006, Element: 0x0010}
	TagReferencedFrameOfReferenceUID      = tag.Tag{Group: 0x3006, Element: 0x0024}
	TagROINumber                          = tag.Tag{Group: 0x3006, Element: 0x0022}
	TagROIName                            = tag.Tag{Group: 0x3006, Element: 0x0026}
	TagStructureSetLabel                  = tag.Tag{Group: 0x3006, Element: 0x0002}
	TagApprovalStatus                     = tag.Tag{Group: 0x300E, Element: 0x0002}
)

// tagRegistry maps lowercase tag names to their TagInfo.
var tagRegistry = map[string]TagInfo{
	// Patient level tags
	"patientname":      {Name: "PatientName", Tag: tag.PatientName, Scope: ScopePatient},
	"patientid":        {Name: "PatientID", Tag: tag.PatientID, Scope: ScopePatient},
	"patientbirthdate": {Name: "PatientBirthDate", Tag: tag.PatientBirthDate, Scope: ScopePatient},
	"patientsex":       {Name: "PatientSex", Tag: tag.PatientSex, Scope: ScopePatient},

	// Study level tags
	"studyinstanceuid": {Name: "StudyInstanceUID", Tag: tag.StudyInstanceUID, Scope: ScopeStudy},
	"studydate":        {Name: "StudyDate", Tag: tag.StudyDate, Scope: ScopeStudy},
	"studydescription": {Name: "StudyDescription", Tag: tag.StudyDescription, Scope: ScopeStudy},
	"studyid":          {Name: "StudyID", Tag: tag.StudyID, Scope: ScopeStudy},
	"accessionnumber":  {Name: "AccessionNumber", Tag: tag.AccessionNumber, Scope: ScopeStudy},
	"institutionname":  {Name: "InstitutionName", Tag: tag.InstitutionName, Scope: ScopeStudy},

	// Series level tags
	"modality":            {Name: "Modality", Tag: tag.Modality, Scope: ScopeSeries},
	"seriesinstanceuid":   {Name: "SeriesInstanceUID", Tag: tag.SeriesInstanceUID, Scope: ScopeSeries},
	"seriesdescription":   {Name: "SeriesDescription", Tag: tag.SeriesDescription, Scope: ScopeSeries},
	"seriesnumber":        {Name: "SeriesNumber", Tag: tag.SeriesNumber, Scope: ScopeSeries},
	"frameofreferenceuid": {Name: "FrameOfReferenceUID", Tag: tag.FrameOfReferenceUID, Scope: ScopeSeries},
	"bodypartexamined":    {Name: "BodyPartExamined", Tag: tag.BodyPartExamined, Scope: ScopeSeries},
	"manufacturer":        {Name: "Manufacturer", Tag: tag.Manufacturer, Scope: ScopeSeries},

	// Image level tags
	"instancenumber": {Name: "InstanceNumber", Tag: tag.InstanceNumber, Scope: ScopeImage},
	"sopinstanceuid": {Name: "SOPInstanceUID", Tag: tag.SOPInstanceUID, Scope: ScopeImage},
	"sopclassuid":    {Name: "SOPClassUID", Tag: tag.SOPClassUID, Scope: ScopeImage},

	// Structure set tags
	"structuresetlabel":             {Name: "StructureSetLabel", Tag: TagStructureSetLabel, Scope: ScopeStructureSet},
	"referencedframeofreferenceuid": {Name: "ReferencedFrameOfReferenceUID", Tag: TagReferencedFrameOfReferenceUID, Scope: ScopeStructureSet},
	"roiname":                       {Name: "ROIName", Tag: TagROIName, Scope: ScopeStructureSet},
	"approvalstatus":                {Name: "ApprovalStatus", Tag: TagApprovalStatus, Scope: ScopeStructureSet},
}

var registryNames = func() map[tag.Tag]string {
	m := make(map[tag.Tag]string, len(tagRegistry))
	for _, info := range tagRegistry {
		m[info.Tag] = info.Name
	}
	return m
}()

// NameForTag returns the registry name for t, falling back to the DICOM
// dictionary keyword. ok is false for tags neither knows (private tags).
func NameForTag(t tag.Tag) (string, bool) {
	if name, ok := registryNames[t]; ok {
		return name, true
	}
	info, err := tag.Find(t)
	if err != nil || info.Keyword == "" {
		return "", false
	}
	return info.Keyword, true
}

// GetTagByName returns TagInfo for a given tag name.
// The lookup is case-insensitive. If the tag is not found, an error is returned
// with a suggestion for the closest matching tag name (using Levenshtein distance).
func GetTagByName(name string) (TagInfo, error) {
	// Normalize the input name to lowercase
	normalizedName := strings.ToLower(strings.TrimSpace(name))

	// Direct lookup
	if info, ok := tagRegistry[normalizedName]; ok {
		return info, nil
	}

	// Any other standard keyword, matched exactly
	if info, err := tag.FindByKeyword(strings.TrimSpace(name)); err == nil && info.Keyword != "" {
		return TagInfo{Name: info.Keyword, Tag: info.Tag, Scope: ScopeImage}, nil
	}

	// Tag not found, try to find a suggestion
	suggestion := findClosestTagName(normalizedName)
	if suggestion != "" {
		return TagInfo{}, fmt.Errorf("unknown tag %q, did you mean %q?", name, suggestion)
	}

	return TagInfo{}, fmt.Errorf("unknown tag %q", name)
}

// findClosestTagName finds the closest matching tag name using Levenshtein distance.
// Returns empty string if no close match is found (distance > 5).
func findClosestTagName(input string) string {
	const maxDistance = 5
	bestDistance := maxDistance + 1
	var bestMatch string

	for key, info := range tagRegistry {
		distance := levenshteinDistance(input, key)
		if distance < bestDistance {
			bestDistance = distance
			bestMatch = info.Name
		}
	}

	if bestDistance <= maxDistance {
		return bestMatch
	}
	return ""
}

// levenshteinDistance calculates the Levenshtein distance between two strings.
// This is the minimum number of single-character edits (insertions, deletions,
// or substitutions) required to change one string into the other.
func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Create a matrix to store distances
	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
	}

	// Initialize the first row and column
	for i := 0; i <= len(a); i++ {
		matrix[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		matrix[0][j] = j
	}

	// Fill in the rest of the matrix
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}

			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

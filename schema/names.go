package schema

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	camelWord  = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	camelUpper = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// SnakeCase rewrites a camelCase identifier to snake_case: setExposureTime becomes
// set_exposure_time and getROI becomes get_roi.
func SnakeCase(name string) string {
	s := camelWord.ReplaceAllString(name, "${1}_${2}")
	s = camelUpper.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}

var paramHints = map[TypeTag]string{
	Boolean:     "boolean",
	ByteArray:   "uint8array",
	Double:      "float",
	DoubleArray: "float64_array",
	Float:       "float",
	Int:         "int",
	IntArray:    "uint32_array",
	String:      "string",
	Long:        "int",
	Short:       "int",
	Void:        "void",
	List:        "list",
}

// ParamHint returns the semantic parameter name for a type tag, "object" for class types.
func ParamHint(t TypeTag) string {
	if h, ok := paramHints[t]; ok {
		return h
	}
	return "object"
}

// ParamNames derives unique parameter names from the hints of tags. Repeated hints get an
// increasing numeric suffix: (int, int, int) becomes int, int1, int2.
func ParamNames(tags []TypeTag) []string {
	names := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		hint := ParamHint(t)
		name := hint
		if seen[hint] {
			i := 1
			for seen[hint+strconv.Itoa(i)] {
				i++
			}
			name = hint + strconv.Itoa(i)
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

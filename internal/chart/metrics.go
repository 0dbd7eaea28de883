// ABOUTME: Mines structured metrics out of free-form assistant text.
// ABOUTME: Matches the **Label**: number pattern and builds chart render requests.

package chart

import (
	"regexp"
	"strconv"
	"strings"
)

// metricPattern matches a two-asterisk-delimited label followed by a
// colon and an integer, anywhere in the text.
var metricPattern = regexp.MustCompile(`\*\*(.*?)\*\*:\s*(\d+)`)

// subjectKey is the metric label used to derive a chart title when present.
const subjectKey = "SubjectQueried"

// Metric is one label/value pair mined from assistant text.
type Metric struct {
	Label string
	Value int
}

// MetricSet is an ordered collection of metrics. Order follows first
// appearance in the text; labels are unique with the last occurrence
// winning on duplicates.
type MetricSet []Metric

// Get returns the value for a label.
func (m MetricSet) Get(label string) (int, bool) {
	for _, metric := range m {
		if metric.Label == label {
			return metric.Value, true
		}
	}
	return 0, false
}

// ExtractMetrics scans text for **Label**: number occurrences. Text with
// no matches yields an empty set, not an error.
func ExtractMetrics(text string) MetricSet {
	matches := metricPattern.FindAllStringSubmatch(text, -1)

	var set MetricSet
	index := make(map[string]int)
	for _, match := range matches {
		label := strings.TrimSpace(match[1])
		value, err := strconv.Atoi(match[2])
		if err != nil {
			// \d+ can still overflow int on absurd inputs
			continue
		}

		if i, seen := index[label]; seen {
			set[i].Value = value
			continue
		}
		index[label] = len(set)
		set = append(set, Metric{Label: label, Value: value})
	}
	return set
}

// Request is the body sent to the rendering service: labels and values
// are equal length and positionally paired.
type Request struct {
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

// BuildRequest turns a metric set into a chart render request. The title
// is derived from the SubjectQueried metric when present, otherwise a
// generic default. An empty set yields nil: charting is opportunistic and
// an absent chart never fails a turn.
func BuildRequest(metrics MetricSet) *Request {
	if len(metrics) == 0 {
		return nil
	}

	subject := "Subject"
	if v, ok := metrics.Get(subjectKey); ok {
		subject = strconv.Itoa(v)
	}

	req := &Request{
		Title:  "Email Analysis: " + subject,
		Labels: make([]string, 0, len(metrics)),
		Values: make([]int, 0, len(metrics)),
	}
	for _, m := range metrics {
		req.Labels = append(req.Labels, m.Label)
		req.Values = append(req.Values, m.Value)
	}
	return req
}

package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/core/runner"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite holds the records of one validator
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase is a single record
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitFailure represents a failed record
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError represents a connection error or setup failure
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped marks an indeterminate record
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter formats results as JUnit XML
type JUnitFormatter struct {
	writer     io.Writer
	testSuites []JUnitTestSuite
	setup      map[string][]*spec.SetupFailure
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer:     os.Stdout,
		testSuites: make([]JUnitTestSuite, 0),
		setup:      make(map[string][]*spec.SetupFailure),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) FormatHeader(version string) {}

func (f *JUnitFormatter) FormatRecord([]string, *results.Record) {}

func (f *JUnitFormatter) FormatSetupFailure(sf *spec.SetupFailure) {
	f.setup[sf.Validator] = append(f.setup[sf.Validator], sf)
}

func (f *JUnitFormatter) FormatResult(result *runner.RunResult) {
	suites := make(map[string]*JUnitTestSuite)
	suite := func(name string) *JUnitTestSuite {
		s, ok := suites[name]
		if !ok {
			s = &JUnitTestSuite{Name: name, Timestamp: time.Now().Format(time.RFC3339)}
			suites[name] = s
		}
		return s
	}

	for _, l := range leaves(result.Results.Tree()) {
		validator := ""
		if len(l.path) > 0 {
			validator = l.path[0]
		}
		s := suite(validator)
		rec := l.record
		tc := JUnitTestCase{
			Name:      l.name(),
			ClassName: validator,
			Time:      rec.Duration.Seconds(),
		}

		switch {
		case rec.Error != "":
			s.Errors++
			tc.Error = &JUnitError{Message: rec.Error, Type: "ConnectionError"}
		case rec.Valid == nil:
			s.Skipped++
			tc.Skipped = &JUnitSkipped{Message: "indeterminate"}
		case !*rec.Valid:
			s.Failures++
			tc.Failure = &JUnitFailure{
				Message: "Assertion failed",
				Type:    "AssertionError",
				Content: strings.Join(failureLines(rec), "\n"),
			}
		}

		s.Tests++
		s.Time += rec.Duration.Seconds()
		s.TestCases = append(s.TestCases, tc)
	}

	for _, name := range result.Validators {
		for _, sf := range f.setup[name] {
			s := suite(name)
			s.Errors++
			s.Tests++
			s.TestCases = append(s.TestCases, JUnitTestCase{
				Name:      strings.Join(sf.Path, " "),
				ClassName: name,
				Error:     &JUnitError{Message: sf.Message, Type: "SetupFailure", Content: string(sf.Stack)},
			})
		}
		if s, ok := suites[name]; ok {
			f.testSuites = append(f.testSuites, *s)
		}
	}
}

func (f *JUnitFormatter) FormatError(err error) {
	// Errors are included in individual test cases
}

// Flush writes the accumulated JUnit XML output
func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	var totalTests, totalFailures, totalErrors, totalSkipped int
	for _, suite := range f.testSuites {
		totalTests += suite.Tests
		totalFailures += suite.Failures
		totalErrors += suite.Errors
		totalSkipped += suite.Skipped
	}

	suites := JUnitTestSuites{
		Name:       "tentspec",
		Tests:      totalTests,
		Failures:   totalFailures,
		Errors:     totalErrors,
		Skipped:    totalSkipped,
		Time:       totalDuration.Seconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
		TestSuites: f.testSuites,
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	return encoder.Encode(suites)
}

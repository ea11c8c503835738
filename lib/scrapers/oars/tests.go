package oars

import (
	"fmt"

	"edexport-backend/lib/textutil"

	"github.com/antzucaro/matchr"
)

// Form is one form (difficulty band) of a test.
type Form struct {
	Id     string `json:"id"`
	FormId string `json:"formId"`
	Name   string `json:"name"`
}

// Test is one entry of the portal's test metadata.
type Test struct {
	Id         string `json:"id"`
	TestId     string `json:"testId"`
	Name       string `json:"name"`
	ScaleId    string `json:"scale_id"`
	ReportType string `json:"reportType"`
	Forms      []Form `json:"forms"`
}

type Tests []Test

// editDistanceLimit bounds how far a fuzzy name match may stray. Anything
// further apart than this is treated as a different test.
const editDistanceLimit = 3

// FromName finds a test by name. Exact matches win, then case-insensitive
// ones, then the closest fuzzy match within a small edit distance so minor
// typos like "PAT Maths 4th Edition " still resolve.
func (t Tests) FromName(name string) (Test, error) {
	for _, test := range t {
		if test.Name == name {
			return test, nil
		}
	}
	normalized := textutil.NormalizeName(name)
	for _, test := range t {
		if textutil.NormalizeName(test.Name) == normalized {
			return test, nil
		}
	}

	best := -1
	bestDistance := editDistanceLimit + 1
	for i, test := range t {
		d := matchr.DamerauLevenshtein(textutil.NormalizeName(test.Name), normalized)
		if d < bestDistance {
			best = i
			bestDistance = d
		}
	}
	if best < 0 {
		return Test{}, fmt.Errorf("no test named %q", name)
	}
	return t[best], nil
}

// FormFromName finds a form of this test by name, with the same fuzzy
// fallback as Tests.FromName.
func (t Test) FormFromName(name string) (Form, error) {
	for _, form := range t.Forms {
		if form.Name == name {
			return form, nil
		}
	}
	normalized := textutil.NormalizeName(name)
	for _, form := range t.Forms {
		if textutil.NormalizeName(form.Name) == normalized {
			return form, nil
		}
	}

	best := -1
	bestDistance := editDistanceLimit + 1
	for i, form := range t.Forms {
		d := matchr.DamerauLevenshtein(textutil.NormalizeName(form.Name), normalized)
		if d < bestDistance {
			best = i
			bestDistance = d
		}
	}
	if best < 0 {
		return Form{}, fmt.Errorf("test %q has no form named %q", t.Name, name)
	}
	return t.Forms[best], nil
}

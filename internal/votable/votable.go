// Package votable decodes the subset of IVOA VOTable documents the archive
// returns: datalink link documents and SIA2 query results serialised as TABLEDATA.
package votable

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/casda-stager/internal/common"
)

// Document is a decoded VOTABLE element.
type Document struct {
	Resources []Resource
}

// Resource is one top-level RESOURCE. Type defaults to "results" as in the standard.
type Resource struct {
	Type   string
	ID     string
	Name   string
	Utype  string
	Params []Param
	Tables []*Table
}

// Param is a name/value PARAM attached to a resource.
type Param struct {
	ID       string
	Name     string
	Value    string
	Datatype string
	UCD      string
}

// Field describes one table column.
type Field struct {
	ID        string
	Name      string
	Datatype  string
	Arraysize string
	UCD       string
	Unit      string
}

type xmlVOTable struct {
	XMLName   xml.Name      `xml:"VOTABLE"`
	Resources []xmlResource `xml:"RESOURCE"`
}

type xmlResource struct {
	Type   string     `xml:"type,attr"`
	ID     string     `xml:"ID,attr"`
	Name   string     `xml:"name,attr"`
	Utype  string     `xml:"utype,attr"`
	Params []xmlParam `xml:"PARAM"`
	Tables []xmlTable `xml:"TABLE"`
}

type xmlParam struct {
	ID       string `xml:"ID,attr"`
	Name     string `xml:"name,attr"`
	Value    string `xml:"value,attr"`
	Datatype string `xml:"datatype,attr"`
	UCD      string `xml:"ucd,attr"`
}

type xmlField struct {
	ID        string `xml:"ID,attr"`
	Name      string `xml:"name,attr"`
	Datatype  string `xml:"datatype,attr"`
	Arraysize string `xml:"arraysize,attr"`
	UCD       string `xml:"ucd,attr"`
	Unit      string `xml:"unit,attr"`
}

type xmlTable struct {
	Name   string     `xml:"name,attr"`
	Fields []xmlField `xml:"FIELD"`
	Data   *struct {
		Rows    []xmlRow  `xml:"TABLEDATA>TR"`
		Binary  *struct{} `xml:"BINARY"`
		Binary2 *struct{} `xml:"BINARY2"`
		FITS    *struct{} `xml:"FITS"`
	} `xml:"DATA"`
}

type xmlRow struct {
	Cells []string `xml:"TD"`
}

// Parse decodes a VOTable document. Only TABLEDATA serialisation is supported.
func Parse(r io.Reader) (*Document, error) {
	var raw xmlVOTable
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, common.MalformedDocumentf("decode votable: %v", err)
	}

	doc := &Document{Resources: make([]Resource, 0, len(raw.Resources))}
	for _, xr := range raw.Resources {
		res := Resource{
			Type:  xr.Type,
			ID:    xr.ID,
			Name:  xr.Name,
			Utype: xr.Utype,
		}
		if res.Type == "" {
			res.Type = "results"
		}
		for _, p := range xr.Params {
			res.Params = append(res.Params, Param(p))
		}
		for _, xt := range xr.Tables {
			t, err := buildTable(xt)
			if err != nil {
				return nil, err
			}
			res.Tables = append(res.Tables, t)
		}
		doc.Resources = append(doc.Resources, res)
	}
	return doc, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func buildTable(xt xmlTable) (*Table, error) {
	t := &Table{Name: xt.Name}
	for _, f := range xt.Fields {
		t.Fields = append(t.Fields, Field(f))
	}
	if xt.Data == nil {
		t.reindex()
		return t, nil
	}
	if xt.Data.Binary != nil || xt.Data.Binary2 != nil || xt.Data.FITS != nil {
		return nil, common.MalformedDocumentf("table %q: only TABLEDATA serialisation is supported", xt.Name)
	}
	for i, row := range xt.Data.Rows {
		if len(row.Cells) > len(t.Fields) {
			return nil, common.MalformedDocumentf("table %q row %d: %d cells for %d fields", xt.Name, i, len(row.Cells), len(t.Fields))
		}
		cells := make([]string, len(t.Fields))
		for j, c := range row.Cells {
			cells[j] = strings.TrimSpace(c)
		}
		t.Rows = append(t.Rows, cells)
	}
	t.reindex()
	return t, nil
}

// ResourcesOfType returns the resources tagged with the given type, in document order.
func (d *Document) ResourcesOfType(typ string) []Resource {
	var out []Resource
	for _, r := range d.Resources {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

// FirstResourceOfType returns the first resource with the given type.
func (d *Document) FirstResourceOfType(typ string) (Resource, bool) {
	for _, r := range d.Resources {
		if r.Type == typ {
			return r, true
		}
	}
	return Resource{}, false
}

// ResultsTable returns the first table of the first results resource.
func (d *Document) ResultsTable() (*Table, error) {
	res, ok := d.FirstResourceOfType("results")
	if !ok {
		return nil, common.MalformedDocumentf("no results resource")
	}
	if len(res.Tables) == 0 {
		return nil, common.MalformedDocumentf("results resource has no table")
	}
	return res.Tables[0], nil
}

// Param looks up a PARAM by name.
func (r Resource) Param(name string) (Param, bool) {
	for _, p := range r.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

func (r Resource) String() string {
	return fmt.Sprintf("RESOURCE(type=%s id=%s)", r.Type, r.ID)
}

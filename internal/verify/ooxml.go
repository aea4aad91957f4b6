package verify

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrNotOOXML is returned when a file is not a readable Office Open XML
// package of the expected kind.
var ErrNotOOXML = errors.New("not an office open xml package")

const (
	nsRelationships  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsWordprocessing = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsPresentation   = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsDrawing        = "http://schemas.openxmlformats.org/drawingml/2006/main"

	relOfficeDocument = "/officeDocument"
	relChart          = "/chart"
	relDrawing        = "/drawing"
	relWorksheet      = "/worksheet"
	relSlide          = "/slide"
)

type relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

type relationships struct {
	Items []relationship `xml:"Relationship"`
}

// opcPackage is an opened zip package with its parts indexed by name.
type opcPackage struct {
	rc    *zip.ReadCloser
	parts map[string]*zip.File
}

func openPackage(filename string) (*opcPackage, error) {
	rc, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotOOXML, err)
	}
	p := &opcPackage{rc: rc, parts: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		p.parts[strings.TrimPrefix(f.Name, "/")] = f
	}
	return p, nil
}

func (p *opcPackage) Close() error {
	return p.rc.Close()
}

func (p *opcPackage) has(name string) bool {
	_, ok := p.parts[name]
	return ok
}

func (p *opcPackage) open(name string) (io.ReadCloser, error) {
	f, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing part %s", ErrNotOOXML, name)
	}
	return f.Open()
}

// decode unmarshals a whole part into v.
func (p *opcPackage) decode(name string, v any) error {
	r, err := p.open(name)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := xml.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", ErrNotOOXML, name, err)
	}
	return nil
}

// walk streams the start elements and character data of a part to fn.
func (p *opcPackage) walk(name string, fn func(tok xml.Token) error) error {
	r, err := p.open(name)
	if err != nil {
		return err
	}
	defer r.Close()
	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: parsing %s: %v", ErrNotOOXML, name, err)
		}
		if err := fn(tok); err != nil {
			return err
		}
	}
}

// rels returns the relationships of a part keyed by id. A part without a
// relationships file has none.
func (p *opcPackage) rels(part string) (map[string]relationship, error) {
	name := path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
	if part == "" {
		name = "_rels/.rels"
	}
	if !p.has(name) {
		return map[string]relationship{}, nil
	}
	var doc relationships
	if err := p.decode(name, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]relationship, len(doc.Items))
	for _, r := range doc.Items {
		out[r.ID] = r
	}
	return out, nil
}

// mainPart finds the package's main document, falling back to the
// conventional location when the root relationships do not name one.
func (p *opcPackage) mainPart(conventional string) (string, error) {
	root, err := p.rels("")
	if err != nil {
		return "", err
	}
	for _, r := range root {
		if strings.HasSuffix(r.Type, relOfficeDocument) {
			name := resolveTarget("", r.Target)
			if p.has(name) && path.Dir(name) == path.Dir(conventional) {
				return name, nil
			}
		}
	}
	if p.has(conventional) {
		return conventional, nil
	}
	return "", fmt.Errorf("%w: missing main part %s", ErrNotOOXML, conventional)
}

// resolveTarget turns a relationship target into a part name relative to
// the package root.
func resolveTarget(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return strings.TrimPrefix(path.Join(path.Dir(source), target), "/")
}

func attr(se xml.StartElement, space, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local && (space == "" || a.Name.Space == space) {
			return a.Value
		}
	}
	return ""
}

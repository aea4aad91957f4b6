package verify

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/signalnine/skillbench/internal/benchmark"
)

type presentationDoc struct {
	Slides []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

// inspectDeck measures a slide deck, visiting slides in presentation order.
func inspectDeck(filename string, size int64) (*inspection, error) {
	p, err := openPackage(filename)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	presPart, err := p.mainPart("ppt/presentation.xml")
	if err != nil {
		return nil, err
	}
	var pres presentationDoc
	if err := p.decode(presPart, &pres); err != nil {
		return nil, err
	}
	rels, err := p.rels(presPart)
	if err != nil {
		return nil, err
	}

	in := newInspection(size, benchmark.MinSlides, benchmark.HasChart, benchmark.HasTable, benchmark.HasImage)
	for _, s := range pres.Slides {
		rel, ok := rels[s.RID]
		if !ok || !strings.HasSuffix(rel.Type, relSlide) {
			return nil, fmt.Errorf("%w: slide %s has no relationship", ErrNotOOXML, s.RID)
		}
		in.counts[benchmark.MinSlides]++
		if err := scanSlide(p, resolveTarget(presPart, rel.Target), in); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func scanSlide(p *opcPackage, part string, in *inspection) error {
	return p.walk(part, func(tok xml.Token) error {
		se, ok := tok.(xml.StartElement)
		if !ok {
			return nil
		}
		switch {
		case se.Name.Space == nsPresentation && se.Name.Local == "pic":
			in.present[benchmark.HasImage] = true
		case se.Name.Space == nsDrawing && se.Name.Local == "tbl":
			in.present[benchmark.HasTable] = true
		case se.Name.Space == nsDrawing && se.Name.Local == "graphicData":
			if strings.HasSuffix(attr(se, "", "uri"), relChart) {
				in.present[benchmark.HasChart] = true
			}
		}
		return nil
	})
}

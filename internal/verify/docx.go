package verify

import (
	"encoding/xml"
	"strings"

	"github.com/signalnine/skillbench/internal/benchmark"
)

// inspectDocument measures the body of a word-processing document. Only
// body-level paragraphs count; paragraphs inside table cells do not.
func inspectDocument(filename string, size int64) (*inspection, error) {
	p, err := openPackage(filename)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	docPart, err := p.mainPart("word/document.xml")
	if err != nil {
		return nil, err
	}

	var (
		paragraphs int
		words      int
		table      bool
		tblDepth   int
		inPara     bool
		inText     bool
		text       strings.Builder
	)
	err = p.walk(docPart, func(tok xml.Token) error {
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != nsWordprocessing {
				return nil
			}
			switch t.Name.Local {
			case "tbl":
				table = true
				tblDepth++
			case "p":
				if tblDepth == 0 {
					inPara = true
					text.Reset()
				}
			case "t":
				inText = inPara
			}
		case xml.EndElement:
			if t.Name.Space != nsWordprocessing {
				return nil
			}
			switch t.Name.Local {
			case "tbl":
				tblDepth--
			case "t":
				inText = false
			case "p":
				if inPara {
					s := text.String()
					if strings.TrimSpace(s) != "" {
						paragraphs++
					}
					words += len(strings.Fields(s))
					inPara = false
				}
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rels, err := p.rels(docPart)
	if err != nil {
		return nil, err
	}
	image := false
	for _, r := range rels {
		if strings.Contains(r.Target, "image") {
			image = true
			break
		}
	}

	in := newInspection(size, benchmark.MinParagraphs, benchmark.MinWords, benchmark.HasTable, benchmark.HasImage)
	in.counts[benchmark.MinParagraphs] = paragraphs
	in.counts[benchmark.MinWords] = words
	in.present[benchmark.HasTable] = table
	in.present[benchmark.HasImage] = image
	return in, nil
}
